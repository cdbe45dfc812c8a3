package events

import (
	"testing"

	"whalehub/core/types"
)

type recorder struct{ got []Event }

func (r *recorder) Emit(e Event) { r.got = append(r.got, e) }

func TestBufferTruncateAndFlush(t *testing.T) {
	buf := NewBuffer()
	buf.Emit(EpochCreated{ID: 1})
	mark := buf.Mark()
	buf.Emit(EpochCreated{ID: 2})
	buf.Truncate(mark)
	buf.Emit(RewardsFilled{Sender: "a", Amount: types.Coins{types.NewCoin("uwhale", 5)}})

	out := &recorder{}
	buf.FlushTo(out)
	if len(out.got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(out.got))
	}
	if out.got[0].EventType() != TypeEpochCreated || out.got[1].EventType() != TypeRewardsFilled {
		t.Fatalf("unexpected order: %v", out.got)
	}
	if buf.Len() != 0 {
		t.Fatalf("buffer not cleared after flush")
	}
}

func TestRenderAttributes(t *testing.T) {
	ev := Render(RewardsClaimed{Module: "incentive", Address: "addr", Epoch: 7, Amount: types.Coins{types.NewCoin("uwhale", 3)}})
	if ev.Type != TypeIncentiveRewardsClaimed {
		t.Fatalf("unexpected type %s", ev.Type)
	}
	if ev.Attributes["epoch_id"] != "7" || ev.Attributes["amount"] != "3uwhale" {
		t.Fatalf("unexpected attributes %v", ev.Attributes)
	}
}
