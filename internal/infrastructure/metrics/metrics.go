// Package metrics exposes WorkflowExecutor lifecycle events as Prometheus
// counters, plugging into the same observer.Observer point the teacher
// used for its DatabaseObserver/LoggerObserver/WebSocketObserver trio
// (internal/application/observer), rather than inventing a separate
// reporting path.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/meshagent/meshagent/internal/application/observer"
)

// NewRegistry constructs a Prometheus registry carrying the standard Go
// runtime and process collectors, kept separate from the global default
// registry so a test can construct one per run without collisions.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// InvocationObserver turns WorkflowExecutor lifecycle events (spec.md §4.9)
// into Prometheus counters: node starts/completions/failures labeled by
// node id, plus process-wide invocation-terminated and message-enqueued
// totals.
type InvocationObserver struct {
	nodesStarted          *prometheus.CounterVec
	nodesCompleted        *prometheus.CounterVec
	nodesFailed           *prometheus.CounterVec
	invocationsTerminated prometheus.Counter
	messagesEnqueued      prometheus.Counter
}

// NewInvocationObserver registers its counters against reg and returns the
// observer ready for ObserverManager.Register.
func NewInvocationObserver(reg *prometheus.Registry) *InvocationObserver {
	o := &InvocationObserver{
		nodesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mbflow_node_invocations_started_total",
			Help: "Node invocations started, labeled by node id.",
		}, []string{"node_id"}),
		nodesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mbflow_node_invocations_completed_total",
			Help: "Node invocations completed successfully, labeled by node id.",
		}, []string{"node_id"}),
		nodesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mbflow_node_invocations_failed_total",
			Help: "Node invocations that ended in error, labeled by node id.",
		}, []string{"node_id"}),
		invocationsTerminated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mbflow_workflow_invocations_terminated_total",
			Help: "Workflow invocations that reached a terminal status.",
		}),
		messagesEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mbflow_messages_enqueued_total",
			Help: "Messages enqueued onto the WorkflowExecutor's FIFO queue.",
		}),
	}
	reg.MustRegister(o.nodesStarted, o.nodesCompleted, o.nodesFailed, o.invocationsTerminated, o.messagesEnqueued)
	return o
}

func (o *InvocationObserver) Name() string { return "metrics" }

func (o *InvocationObserver) Filter() observer.EventFilter { return nil }

func (o *InvocationObserver) OnEvent(ctx context.Context, event observer.Event) error {
	nodeID := ""
	if event.NodeID != nil {
		nodeID = *event.NodeID
	}
	switch event.Type {
	case observer.EventTypeNodeStarted:
		o.nodesStarted.WithLabelValues(nodeID).Inc()
	case observer.EventTypeNodeCompleted:
		o.nodesCompleted.WithLabelValues(nodeID).Inc()
	case observer.EventTypeNodeFailed:
		o.nodesFailed.WithLabelValues(nodeID).Inc()
	case observer.EventTypeInvocationTerminated, observer.EventTypeExecutionFailed:
		o.invocationsTerminated.Inc()
	case observer.EventTypeMessageEnqueued:
		o.messagesEnqueued.Inc()
	}
	return nil
}

var _ observer.Observer = (*InvocationObserver)(nil)
