package event

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/skeinlabs/skein/internal/wire"
)

// pipelineRecord is one line of the frame-to-event trace.
type pipelineRecord struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Summary string `json:"summary"`
}

func summarize(ev Event) string {
	switch ev := ev.(type) {
	case *RunStatus:
		return fmt.Sprintf("status=%s", ev.Status)
	case *TxUpdated:
		amount := "?"
		if ev.Amount != nil {
			amount = ev.Amount.String()
		}
		return fmt.Sprintf("tx=%s unit=%s hops=%d amount=%s", ev.TxID, ev.Unit, len(ev.Edges), amount)
	case *TxFailed:
		return fmt.Sprintf("tx=%s reason=%s", ev.TxID, ev.Reason)
	case *ClearingDone:
		txs := -1
		if ev.TxCount != nil {
			txs = *ev.TxCount
		}
		return fmt.Sprintf("cleared=%s cycles=%d txs=%d", ev.ClearedTotal.String(), ev.Cycles, txs)
	case *TopologyChanged:
		return fmt.Sprintf("node_patches=%d link_patches=%d", len(ev.NodePatches), len(ev.LinkPatches))
	case *Unknown:
		return "passthrough"
	}
	return "?"
}

// TestPipeline_StreamToEvents runs raw stream chunks through the frame
// parser and the normalizer, split at awkward byte boundaries, and
// compares the resulting event trace against a golden file. Garbage
// frames disappear from the trace without disturbing their neighbors.
func TestPipeline_StreamToEvents(t *testing.T) {
	chunks := []string{
		"data: {\"event_id\": \"e1\", \"ts\": 10, \"type\": \"run_sta",
		"tus\", \"status\": \"running\"}\n\n: keepalive\n\n",
		"data: {\"event_id\": \"e2\", \"ts\": 11, \"type\": \"tx.updated\", \"unit\": \"EUR\", ",
		"\"edges\": [[\"alice\", \"bob\"], [\"bob\", \"carol\"]], \"tx_id\": \"tx-1\", \"amount\": \"10.5\"}\n",
		"\ndata: not json at all\n\ndata: {\"event_id\": \"e3\", ",
		"\"ts\": 12, \"type\": \"clearing.done\", \"cleared_total\": \"75.25\", \"cycles\": 2, \"tx_count\": 3}\n\n",
		"data: {\"event_id\": \"e4\", \"ts\": 13, \"type\": \"audit.note\", \"note\": \"hello\"}\n\n",
	}

	parser := wire.NewParser()
	var records []pipelineRecord
	for _, chunk := range chunks {
		for _, frame := range parser.Feed(chunk) {
			if frame.Data == "" {
				continue
			}
			ev, ok := NormalizeJSON([]byte(frame.Data))
			if !ok {
				continue
			}
			records = append(records, pipelineRecord{
				EventID: ev.Envelope().EventID,
				Type:    ev.Envelope().Type,
				Summary: summarize(ev),
			})
		}
	}

	out, err := json.MarshalIndent(records, "", "  ")
	require.NoError(t, err)
	out = append(out, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "stream_pipeline", out)
}
