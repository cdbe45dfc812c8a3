package indexer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/blake3"

	"whalehub/core/events"
	"whalehub/core/types"
)

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	ix, err := Open(DriverSQLite, dsn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	fixed := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	ix.now = func() time.Time { return fixed }
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "", nil)
	require.ErrorIs(t, err, ErrUnknownDriver)
}

func TestEmitPersistsEventsInOrder(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()

	ix.Emit(events.EpochCreated{ID: 2, StartTime: 10})
	ix.Emit(events.RewardsFilled{Sender: "migaloo1alice", Amount: types.Coins{types.NewCoin("uwhale", 5)}})
	ix.Emit(events.EpochCreated{ID: 3, StartTime: 20})

	all, err := ix.Events(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, events.TypeEpochCreated, all[0].Type)
	assert.Equal(t, "2", all[0].Attributes["epoch_id"])
	assert.Equal(t, events.TypeRewardsFilled, all[1].Type)
	assert.Less(t, all[0].Seq, all[1].Seq)
	assert.NotEqual(t, uuid.Nil, all[2].ID)

	epochs, err := ix.Events(ctx, Filter{Type: events.TypeEpochCreated})
	require.NoError(t, err)
	require.Len(t, epochs, 2)
	assert.Equal(t, "3", epochs[1].Attributes["epoch_id"])

	n, err := ix.Count(ctx, Filter{Type: events.TypeEpochCreated, AfterSeq: epochs[0].Seq})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestEventsFilterByAttribute(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()

	ix.Emit(events.RewardsFilled{Sender: "migaloo1alice", Amount: types.Coins{types.NewCoin("uwhale", 5)}})
	ix.Emit(events.RewardsFilled{Sender: "migaloo1bob", Amount: types.Coins{types.NewCoin("uwhale", 7)}})

	got, err := ix.Events(ctx, Filter{Key: "sender", Value: "migaloo1bob"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "migaloo1bob", got[0].Attributes["sender"])

	got, err = ix.Events(ctx, Filter{Key: "sender", Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "migaloo1alice", got[0].Attributes["sender"])

	none, err := ix.Events(ctx, Filter{Key: "epoch_id"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestExportParquetWritesManifest(t *testing.T) {
	ix := newTestIndexer(t)
	for i := uint64(1); i <= 4; i++ {
		ix.Emit(events.EpochCreated{ID: i, StartTime: int64(i)})
	}
	path := filepath.Join(t.TempDir(), "epochs.parquet")

	manifest, err := ix.ExportParquet(context.Background(), path, Filter{Type: events.TypeEpochCreated})
	require.NoError(t, err)
	assert.Equal(t, 4, manifest.Rows)
	assert.Less(t, manifest.FirstSeq, manifest.LastSeq)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	sum := blake3.Sum256(raw)
	assert.Equal(t, fmt.Sprintf("%x", sum[:]), manifest.Checksum)
}
