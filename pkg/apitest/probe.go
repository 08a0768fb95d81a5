package apitest

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Prober checks one domain's certificate.
type Prober func(ctx context.Context, domain string) Scan

// probeLimit bounds concurrent handshakes per scan request.
const probeLimit = 8

// TLSProbe performs a TLS handshake on port 443 and reports the leaf
// certificate's expiry. Unreachable hosts come back INVALID with no date.
func TLSProbe(ctx context.Context, domain string) Scan {
	return probeAddr(ctx, net.JoinHostPort(domain, "443"))
}

func probeAddr(ctx context.Context, addr string) Scan {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: 10 * time.Second},
		// Expired certificates must still be readable.
		Config: &tls.Config{InsecureSkipVerify: true},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Scan{Status: "INVALID", ExpiryDate: "-"}
	}
	defer conn.Close()

	certs := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return Scan{Status: "INVALID", ExpiryDate: "NO_SSL"}
	}
	expiry := certs[0].NotAfter.In(time.Local)

	// 205.5 days left reads as 206.
	days := int(math.Ceil(time.Until(expiry).Hours() / 24))
	status := "VALID"
	if days < 0 {
		status = "INVALID"
	}
	return Scan{Status: status, ExpiryDate: expiry.Format("2006-01-02"), Days: Days(days)}
}

// SetProber makes scan requests run p in the background and record its
// results. Without a prober, triggered domains stay pending.
func (b *Backend) SetProber(p Prober, logger zerolog.Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prober = p
	b.logger = logger
}

func (b *Backend) probe(ids []int) {
	b.mu.Lock()
	p, logger := b.prober, b.logger
	b.mu.Unlock()
	if p == nil {
		return
	}

	var rows []DomainRecord
	q := b.db.Model(&DomainRecord{})
	if ids != nil {
		q = q.Where("id IN ?", ids)
	}
	if err := q.Find(&rows).Error; err != nil {
		logger.Error().Err(err).Msg("failed to load domains for scanning")
		return
	}

	b.scans.Add(1)
	go func() {
		defer b.scans.Done()
		var g errgroup.Group
		g.SetLimit(probeLimit)
		for _, d := range rows {
			d := d
			g.Go(func() error {
				res := p(context.Background(), d.Domain)
				if err := b.RecordScan(d.ID, res); err != nil {
					logger.Warn().Err(err).Str("domain", d.Domain).Msg("failed to record scan")
					return nil
				}
				logger.Info().Str("domain", d.Domain).Str("status", res.Status).Msg("domain scanned")
				return nil
			})
		}
		g.Wait()
	}()
}

// WaitScans blocks until background scans have been recorded.
func (b *Backend) WaitScans() {
	b.scans.Wait()
}
