package csvfile

import (
	"compress/gzip"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ladder-battle-crawler/internal/crawler"
)

var start = time.Date(2024, 5, 1, 9, 15, 0, 0, time.UTC)

func sample(sec int) crawler.Battle {
	return crawler.Battle{
		Time:    time.Date(2024, 5, 1, 12, 0, sec, 0, time.UTC),
		Mode:    72000323,
		Player1: crawler.Player{Tag: "YYY", Rating: 2100, Crowns: 3, Cards: crawler.Deck{1, 2, 3, 4, 5, 6, 7, 8}},
		Player2: crawler.Player{Tag: "XXX", Rating: 2080, Crowns: 1, Cards: crawler.Deck{11, 12, 13, 14, 15, 16, 17, 18}},
	}
}

func TestRecordLayout(t *testing.T) {
	t.Parallel()

	row := Record(sample(0))
	require.Len(t, row, 24)
	require.Equal(t, "20240501T120000.000Z", row[0])
	require.Equal(t, "72000323", row[1])
	require.Equal(t, []string{"YYY", "2100", "3", "1"}, row[2:6])
	require.Equal(t, "8", row[12])
	require.Equal(t, []string{"XXX", "2080", "1", "11"}, row[13:17])
	require.Equal(t, "18", row[23])
}

func TestFinalizePlain(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := Create(dir, start)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20240501T091500.csv"), w.Path())

	require.NoError(t, w.Write([]crawler.Battle{sample(0), sample(1)}))
	require.Equal(t, 2, w.Rows())

	path, err := Finalize(w, FinalizeOptions{})
	require.NoError(t, err)
	require.Equal(t, w.Path(), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.ErrorIs(t, w.Write([]crawler.Battle{sample(2)}), os.ErrClosed)
}

func TestFinalizeCompressRemovesPlain(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := Create(dir, start)
	require.NoError(t, err)
	require.NoError(t, w.Write([]crawler.Battle{sample(0), sample(1), sample(2)}))

	path, err := Finalize(w, FinalizeOptions{Compress: true})
	require.NoError(t, err)
	require.Equal(t, w.Path()+".gz", path)

	_, err = os.Stat(w.Path())
	require.ErrorIs(t, err, os.ErrNotExist)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	rows, err := csv.NewReader(zr).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, Record(sample(2)), rows[2])
}

func TestFinalizeCompressKeepOriginal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := Create(dir, start)
	require.NoError(t, err)
	require.NoError(t, w.Write([]crawler.Battle{sample(0)}))

	path, err := Finalize(w, FinalizeOptions{Compress: true, KeepOriginal: true})
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(w.Path())
	require.NoError(t, err)
}

func TestFinalizeDetectsMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := Create(dir, start)
	require.NoError(t, err)
	require.NoError(t, w.Write([]crawler.Battle{sample(0)}))
	require.NoError(t, w.Close())

	// Rows appended behind the writer's back.
	f, err := os.OpenFile(w.Path(), os.O_APPEND|os.O_WRONLY, 0o640)
	require.NoError(t, err)
	_, err = f.WriteString("extra\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Finalize(w, FinalizeOptions{Compress: true})
	require.ErrorIs(t, err, ErrCompressionMismatch)
	_, err = os.Stat(w.Path())
	require.NoError(t, err)
}
