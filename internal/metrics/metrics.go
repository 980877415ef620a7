// Package metrics exposes runtime counters for navigation, injection and
// plugin loading. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "linkbrowser"

// Result labels.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics tracks application counters in a private registry.
type Metrics struct {
	registry *prometheus.Registry

	navigations     *prometheus.CounterVec
	injectionPasses prometheus.Counter
	scripts         *prometheus.CounterVec
	bridges         *prometheus.CounterVec
	pluginsLoaded   prometheus.Counter
	pluginFailures  *prometheus.CounterVec
	pluginsActive   prometheus.Gauge
	menuActions     *prometheus.CounterVec
	menuDropped     prometheus.Counter
	downloads       *prometheus.CounterVec
}

// New creates a metrics set registered with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		navigations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigation_transitions_total",
			Help:      "Document navigation transitions by target state.",
		}, []string{"state"}),
		injectionPasses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "injection_passes_total",
			Help:      "Re-injection passes run after a successful navigation.",
		}),
		scripts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "injected_scripts_total",
			Help:      "Injected script executions by result.",
		}, []string{"result"}),
		bridges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_binds_total",
			Help:      "Bridge object binds by result.",
		}, []string{"result"}),
		pluginsLoaded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugins_loaded_total",
			Help:      "Plugins that initialized successfully.",
		}),
		pluginFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_failures_total",
			Help:      "Plugin load failures by stage.",
		}, []string{"stage"}),
		pluginsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "plugins_active",
			Help:      "Plugins currently in the loaded list.",
		}),
		menuActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_menu_actions_total",
			Help:      "Context menu actions selected by label.",
		}, []string{"action"}),
		menuDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_menu_dropped_total",
			Help:      "Context menu requests dropped because coordinates did not resolve.",
		}),
		downloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Finished downloads by result.",
		}, []string{"result"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordNavigation counts a transition into state.
func (m *Metrics) RecordNavigation(state string) {
	if m == nil {
		return
	}
	m.navigations.WithLabelValues(state).Inc()
}

// RecordInjectionPass counts one re-injection pass.
func (m *Metrics) RecordInjectionPass() {
	if m == nil {
		return
	}
	m.injectionPasses.Inc()
}

// RecordScript counts one injected script execution.
func (m *Metrics) RecordScript(err error) {
	if m == nil {
		return
	}
	m.scripts.WithLabelValues(result(err)).Inc()
}

// RecordBridge counts one bridge bind.
func (m *Metrics) RecordBridge(err error) {
	if m == nil {
		return
	}
	m.bridges.WithLabelValues(result(err)).Inc()
}

// RecordPluginLoaded counts a successful plugin initialization.
func (m *Metrics) RecordPluginLoaded() {
	if m == nil {
		return
	}
	m.pluginsLoaded.Inc()
}

// RecordPluginFailure counts a plugin failure at stage.
func (m *Metrics) RecordPluginFailure(stage string) {
	if m == nil {
		return
	}
	m.pluginFailures.WithLabelValues(stage).Inc()
}

// SetPluginsActive sets the loaded plugin gauge.
func (m *Metrics) SetPluginsActive(n int) {
	if m == nil {
		return
	}
	m.pluginsActive.Set(float64(n))
}

// RecordMenuAction counts a selected context menu action.
func (m *Metrics) RecordMenuAction(label string) {
	if m == nil {
		return
	}
	m.menuActions.WithLabelValues(label).Inc()
}

// RecordMenuDropped counts a context menu request that was dropped.
func (m *Metrics) RecordMenuDropped() {
	if m == nil {
		return
	}
	m.menuDropped.Inc()
}

// RecordDownload counts a finished download.
func (m *Metrics) RecordDownload(err error) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
