package touchlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleLog = `,time,x,y,bug_x,bug_y,is_hit,is_reward_bug,bug_type
0,2021-03-14 09:27:01.1,10,20,12,22,True,True,cockroach
1,2021-03-14 09:27:03.4,400,20,12,22,False,False,cockroach
2,2021-03-14 09:27:05.0,11,21,12,22,True,False,worm
3,2021-03-14 09:27:07.9,13,23,12,22,true,1,cockroach
`

func TestParse_Counts(t *testing.T) {
	s, err := Parse(strings.NewReader(sampleLog))
	require.NoError(t, err)
	require.Equal(t, Summary{Touches: 4, Hits: 3, RewardedHits: 2}, s)
}

func TestParse_HeaderOnly(t *testing.T) {
	s, err := Parse(strings.NewReader("time,is_hit,is_reward_bug\n"))
	require.NoError(t, err)
	require.Equal(t, Summary{}, s)
}

func TestParse_Empty(t *testing.T) {
	s, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, Summary{}, s)
}

func TestParse_MissingHitColumn(t *testing.T) {
	_, err := Parse(strings.NewReader("time,x,y\n1,2,3\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "is_hit")
}

func TestParse_NoRewardColumn(t *testing.T) {
	s, err := Parse(strings.NewReader("time,is_hit\na,True\nb,False\n"))
	require.NoError(t, err)
	require.Equal(t, Summary{Touches: 2, Hits: 1, RewardedHits: 0}, s)
}

func TestReader_Read(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte(sampleLog), 0o644))

	s, err := NewReader("").Read(dir)
	require.NoError(t, err)
	require.Equal(t, 4, s.Touches)
}

func TestReader_Missing(t *testing.T) {
	_, err := NewReader("").Read(t.TempDir())
	require.ErrorIs(t, err, ErrNoTouchLog)
}

func TestReader_DirectoryIsNotALog(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "touches.csv"), 0o755))

	_, err := NewReader("touches.csv").Read(dir)
	require.ErrorIs(t, err, ErrNoTouchLog)
}

func TestReader_Malformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte("a,\"b\n"), 0o644))

	_, err := NewReader("").Read(dir)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNoTouchLog)
}
