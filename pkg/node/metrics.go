package node

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"

	"github.com/YinWang3026/dynago/pkg/model"
)

// Message traffic and client failures per node, in prometheus form.

func countMessage(id model.NodeID, dir string, kind byte) {
	name := fmt.Sprintf(`dynago_messages_total{node=%q,dir=%q,type="0x%02x"}`, id, dir, kind)
	metrics.GetOrCreateCounter(name).Inc()
}

func countClientFailure(id model.NodeID, kind byte) {
	op := "get"
	if kind == kindPut {
		op = "put"
	}
	name := fmt.Sprintf(`dynago_client_failures_total{node=%q,op=%q}`, id, op)
	metrics.GetOrCreateCounter(name).Inc()
}
