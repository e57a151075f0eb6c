package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink counts events per kind and provider.
type PrometheusSink struct {
	searchWithAds *prometheus.CounterVec
	adClicked     *prometheus.CounterVec
}

// NewPrometheusSink creates the counters and registers them with reg. A nil
// reg registers with the default registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &PrometheusSink{
		searchWithAds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "serpads_search_with_ads_total",
			Help: "Results pages of a known provider that contained ads",
		}, []string{"provider"}),
		adClicked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "serpads_ad_clicked_total",
			Help: "Ad clicks attributed to a known provider",
		}, []string{"provider"}),
	}
	for _, c := range []prometheus.Collector{p.searchWithAds, p.adClicked} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *PrometheusSink) Track(ev Event) {
	switch ev.Kind {
	case KindSearchWithAds:
		p.searchWithAds.WithLabelValues(ev.Provider).Inc()
	case KindAdClicked:
		p.adClicked.WithLabelValues(ev.Provider).Inc()
	}
}

// SearchWithAds exposes the underlying counter vector.
func (p *PrometheusSink) SearchWithAds() *prometheus.CounterVec { return p.searchWithAds }

// AdClicked exposes the underlying counter vector.
func (p *PrometheusSink) AdClicked() *prometheus.CounterVec { return p.adClicked }
