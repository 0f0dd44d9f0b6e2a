package plugins

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"

	"assetrecon/internal/assets"
	"assetrecon/internal/reconcile"
)

const mdnsSourceName = "mdns"

// MDNS learns host names from multicast DNS announcements. One browse answers
// for every target in a scan, so results are shared until they expire.
type MDNS struct {
	service string
	timeout time.Duration
	ttl     time.Duration
	log     logrus.FieldLogger
	query   func(*mdns.QueryParam) error

	mu       sync.Mutex
	entries  []*mdns.ServiceEntry
	lastScan time.Time
}

// NewMDNS creates a new mDNS adapter
func NewMDNS(service string, timeout time.Duration, log logrus.FieldLogger) *MDNS {
	if service == "" {
		service = "_workstation._tcp"
	}
	return &MDNS{
		service: service,
		timeout: timeout,
		ttl:     time.Minute,
		log:     log,
		query:   mdns.Query,
	}
}

// Name implements Plugin
func (m *MDNS) Name() string { return mdnsSourceName }

// Collect implements Plugin
func (m *MDNS) Collect(ctx context.Context, target Target) (reconcile.SourceReport, error) {
	entries := m.browse(ctx)
	report, ok := mdnsReport(entries, target)
	if !ok {
		return reconcile.SourceReport{}, ErrNoData
	}
	return report, nil
}

func (m *MDNS) browse(ctx context.Context) []*mdns.ServiceEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.lastScan.IsZero() && time.Since(m.lastScan) < m.ttl {
		return m.entries
	}

	entriesCh := make(chan *mdns.ServiceEntry, 100)
	params := &mdns.QueryParam{
		Service:     m.service,
		Domain:      "local",
		Timeout:     m.timeout,
		Entries:     entriesCh,
		DisableIPv6: true,
	}
	go func() {
		defer close(entriesCh)
		if err := m.query(params); err != nil && m.log != nil {
			m.log.WithError(err).WithField("service", m.service).Debug("mDNS query failed")
		}
	}()

	var found []*mdns.ServiceEntry
	for {
		select {
		case entry, ok := <-entriesCh:
			if !ok {
				m.entries, m.lastScan = found, time.Now()
				return found
			}
			if entry != nil {
				found = append(found, entry)
			}
		case <-ctx.Done():
			go func() {
				for range entriesCh {
				}
			}()
			return found
		}
	}
}

// mdnsReport picks the announcement of target and reports its host name
func mdnsReport(entries []*mdns.ServiceEntry, target Target) (reconcile.SourceReport, bool) {
	for _, entry := range entries {
		if entry.AddrV4 == nil || entry.AddrV4.String() != target.Address {
			continue
		}
		host := strings.TrimSuffix(strings.TrimSuffix(entry.Host, "."), ".local")
		if host == "" {
			continue
		}
		report := newReport(mdnsSourceName)
		report.Fields[assets.FieldName] = host
		report.Fields[assets.FieldManagementAddress] = target.Address
		if entry.Info != "" {
			report.Fields[assets.FieldDescription] = entry.Info
		}
		return report, true
	}
	return reconcile.SourceReport{}, false
}
