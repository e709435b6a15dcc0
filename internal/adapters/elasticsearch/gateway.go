// Package elasticsearch implements the cluster gateway over the official
// go-elasticsearch v8 client.
package elasticsearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	es8 "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/klauspost/compress/gzip"

	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
	"github.com/strawgate/homeassistant-elasticsearch/internal/errs"
	"github.com/strawgate/homeassistant-elasticsearch/internal/ports"
)

const component = "elasticsearch"

type Config struct {
	URL            string
	Username       string
	Password       string
	APIKey         string
	VerifyCerts    bool
	CACertPath     string
	RequestTimeout time.Duration
	// Compress gzips bulk request bodies.
	Compress bool
	// CheckPrivileges runs the has_privileges check during Init.
	CheckPrivileges bool

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// RequiredPrivileges is what the pipeline needs to manage and write its datastreams.
var RequiredPrivileges = PrivilegeRequest{
	Cluster: []string{"manage_index_templates", "manage_ilm", "monitor"},
	Index: []IndexPrivileges{{
		Names:      []string{"metrics-homeassistant.*"},
		Privileges: []string{"manage", "index", "create_index", "create"},
	}},
}

type PrivilegeRequest struct {
	Cluster []string          `json:"cluster"`
	Index   []IndexPrivileges `json:"index"`
}

type IndexPrivileges struct {
	Names      []string `json:"names"`
	Privileges []string `json:"privileges"`
}

// Gateway talks to one cluster. It is safe for concurrent use.
type Gateway struct {
	client  *es8.Client
	cfg     Config
	timeout time.Duration
	caps    atomic.Pointer[domain.Capabilities]
}

func New(cfg Config) (*Gateway, error) {
	if cfg.URL == "" {
		return nil, errs.WrapInvalid(fmt.Errorf("url is required: %w", errs.ErrInvalidConfig), component, "New")
	}
	transport := cfg.Transport
	if transport == nil {
		t, err := httpTransport(cfg)
		if err != nil {
			return nil, errs.WrapInvalid(err, component, "New")
		}
		transport = t
	}

	client, err := es8.NewClient(es8.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
		Transport: transport,
	})
	if err != nil {
		return nil, errs.WrapInvalid(err, component, "New")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{client: client, cfg: cfg, timeout: timeout}, nil
}

func httpTransport(cfg Config) (*http.Transport, error) {
	t := http.DefaultTransport.(*http.Transport).Clone()
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if !cfg.VerifyCerts {
		tlsCfg.InsecureSkipVerify = true //nolint:gosec // opt-in via verify_certs: false
	}
	if cfg.CACertPath != "" {
		pem, err := os.ReadFile(cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("read ca certs: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CACertPath)
		}
		tlsCfg.RootCAs = pool
	}
	t.TLSClientConfig = tlsCfg
	return t, nil
}

// Init tests the connection, checks the cluster version and, when enabled,
// the privileges of the configured credentials.
func (g *Gateway) Init(ctx context.Context) error {
	var info struct {
		Version struct {
			Number      string `json:"number"`
			BuildFlavor string `json:"build_flavor"`
		} `json:"version"`
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	res, err := g.client.Info(g.client.Info.WithContext(ctx))
	if err := decode("Info", res, err, &info); err != nil {
		return err
	}

	version, err := domain.ParseClusterVersion(info.Version.Number, info.Version.BuildFlavor)
	if err != nil {
		return errs.WrapFatal(fmt.Errorf("%w: %v", errs.ErrUnsupportedVersion, err), component, "Init")
	}
	caps := domain.CapabilitiesFor(version)
	if !caps.Supported {
		return errs.WrapFatal(fmt.Errorf("%w: %s", errs.ErrUnsupportedVersion, version.Number), component, "Init")
	}

	if g.cfg.CheckPrivileges {
		if err := g.checkPrivileges(ctx); err != nil {
			return err
		}
	}
	g.caps.Store(&caps)
	return nil
}

func (g *Gateway) checkPrivileges(ctx context.Context) error {
	body, err := json.Marshal(RequiredPrivileges)
	if err != nil {
		return errs.WrapFatal(err, component, "HasPrivileges")
	}
	var out struct {
		HasAllRequested bool `json:"has_all_requested"`
	}
	res, err := g.client.Security.HasPrivileges(bytes.NewReader(body), g.client.Security.HasPrivileges.WithContext(ctx))
	err = decode("HasPrivileges", res, err, &out)
	var re *ResponseError
	if errors.As(err, &re) && (re.Status == http.StatusNotFound || re.Status == http.StatusBadRequest) {
		// security is disabled on this cluster
		return nil
	}
	if err != nil {
		return err
	}
	if !out.HasAllRequested {
		return errs.WrapFatal(errs.ErrInsufficientPrivileges, component, "HasPrivileges")
	}
	return nil
}

// Capabilities returns the feature table of the connected cluster. It is the
// zero value before a successful Init.
func (g *Gateway) Capabilities() domain.Capabilities {
	if c := g.caps.Load(); c != nil {
		return *c
	}
	return domain.Capabilities{}
}

func (g *Gateway) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	res, err := g.client.Ping(g.client.Ping.WithContext(ctx))
	return decode("Ping", res, err, nil)
}

type bulkMeta struct {
	Index string `json:"_index"`
}

type bulkResponse struct {
	Took   int                           `json:"took"`
	Errors bool                          `json:"errors"`
	Items  []map[string]bulkResponseItem `json:"items"`
}

type bulkResponseItem struct {
	Index  string `json:"_index"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error,omitempty"`
}

// Bulk sends actions as one NDJSON request. Rejected documents are reported
// per item; only a failure of the request itself is returned as an error.
func (g *Gateway) Bulk(ctx context.Context, actions []domain.BulkAction) (domain.BulkResult, error) {
	if len(actions) == 0 {
		return domain.BulkResult{}, nil
	}
	body, err := EncodeBulk(actions)
	if err != nil {
		return domain.BulkResult{}, errs.WrapInvalid(err, component, "Bulk")
	}

	opts := []func(*esapi.BulkRequest){}
	var reader io.Reader = bytes.NewReader(body)
	if g.cfg.Compress {
		zipped, err := gzipBody(body)
		if err != nil {
			return domain.BulkResult{}, errs.WrapInvalid(err, component, "Bulk")
		}
		reader = bytes.NewReader(zipped)
		opts = append(opts, g.client.Bulk.WithHeader(map[string]string{"Content-Encoding": "gzip"}))
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	opts = append(opts, g.client.Bulk.WithContext(ctx))

	var out bulkResponse
	res, err := g.client.Bulk(reader, opts...)
	if err := decode("Bulk", res, err, &out); err != nil {
		return domain.BulkResult{}, err
	}
	return out.result(), nil
}

func (r bulkResponse) result() domain.BulkResult {
	items := make([]domain.BulkItemResult, 0, len(r.Items))
	for _, entry := range r.Items {
		for op, it := range entry {
			item := domain.BulkItemResult{Operation: op, Index: it.Index, Status: it.Status}
			if it.Error != nil {
				item.ErrorType = it.Error.Type
				item.ErrorReason = it.Error.Reason
			}
			items = append(items, item)
		}
	}
	return domain.BulkResult{Took: time.Duration(r.Took) * time.Millisecond, Items: items, Errors: r.Errors}
}

// EncodeBulk renders actions as an NDJSON bulk body: one metadata line and
// one source line per action.
func EncodeBulk(actions []domain.BulkAction) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, a := range actions {
		op := a.Operation
		if op == "" {
			op = domain.BulkOpCreate
		}
		if err := enc.Encode(map[string]bulkMeta{op: {Index: a.Index}}); err != nil {
			return nil, err
		}
		if err := enc.Encode(a.Document); err != nil {
			return nil, fmt.Errorf("encode document for %s: %w", a.Index, err)
		}
	}
	return buf.Bytes(), nil
}

func gzipBody(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GetIndexTemplate reports the installed version of a composable index
// template, or false when it does not exist.
func (g *Gateway) GetIndexTemplate(ctx context.Context, name string) (domain.IndexTemplateInfo, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var out struct {
		IndexTemplates []struct {
			Name          string `json:"name"`
			IndexTemplate struct {
				Version int `json:"version"`
			} `json:"index_template"`
		} `json:"index_templates"`
	}
	res, err := g.client.Indices.GetIndexTemplate(
		g.client.Indices.GetIndexTemplate.WithName(name),
		g.client.Indices.GetIndexTemplate.WithContext(ctx),
	)
	err = decode("GetIndexTemplate", res, err, &out)
	if isStatus(err, http.StatusNotFound) {
		return domain.IndexTemplateInfo{}, false, nil
	}
	if err != nil {
		return domain.IndexTemplateInfo{}, false, err
	}
	for _, t := range out.IndexTemplates {
		if t.Name == name {
			return domain.IndexTemplateInfo{Name: t.Name, Version: t.IndexTemplate.Version}, true, nil
		}
	}
	return domain.IndexTemplateInfo{}, false, nil
}

func (g *Gateway) PutIndexTemplate(ctx context.Context, name string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	res, err := g.client.Indices.PutIndexTemplate(name, bytes.NewReader(body),
		g.client.Indices.PutIndexTemplate.WithContext(ctx))
	return decode("PutIndexTemplate", res, err, nil)
}

// GetDatastreams lists the names of datastreams matching pattern.
func (g *Gateway) GetDatastreams(ctx context.Context, pattern string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var out struct {
		DataStreams []struct {
			Name string `json:"name"`
		} `json:"data_streams"`
	}
	res, err := g.client.Indices.GetDataStream(
		g.client.Indices.GetDataStream.WithName(pattern),
		g.client.Indices.GetDataStream.WithContext(ctx),
	)
	err = decode("GetDatastreams", res, err, &out)
	if isStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.DataStreams))
	for _, ds := range out.DataStreams {
		names = append(names, ds.Name)
	}
	return names, nil
}

func (g *Gateway) RolloverDatastream(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	res, err := g.client.Indices.Rollover(name, g.client.Indices.Rollover.WithContext(ctx))
	return decode("RolloverDatastream", res, err, nil)
}

// ResponseError is a non-2xx answer from the cluster.
type ResponseError struct {
	Status int
	Type   string
	Reason string
}

func (e *ResponseError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("status %d", e.Status)
	}
	return fmt.Sprintf("status %d: %s: %s", e.Status, e.Type, e.Reason)
}

func isStatus(err error, status int) bool {
	var re *ResponseError
	return errors.As(err, &re) && re.Status == status
}

// decode closes the response, classifies failures and unmarshals a
// successful body into out when out is not nil.
func decode(op string, res *esapi.Response, err error, out any) error {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return errs.WrapTransient(fmt.Errorf("%w: %v", errs.ErrNotReady, err), component, op)
	}
	defer res.Body.Close()

	if res.IsError() {
		return classify(op, res)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errs.WrapTransient(fmt.Errorf("decode response: %w", err), component, op)
	}
	return nil
}

func classify(op string, res *esapi.Response) error {
	re := &ResponseError{Status: res.StatusCode}
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if res.Body != nil && json.NewDecoder(res.Body).Decode(&body) == nil && len(body.Error) > 0 {
		var detail struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		}
		if json.Unmarshal(body.Error, &detail) == nil {
			re.Type, re.Reason = detail.Type, detail.Reason
		} else {
			re.Reason = strings.Trim(string(body.Error), `"`)
		}
	}

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return errs.WrapAuth(fmt.Errorf("%w: %w", errs.ErrAuthFailed, re), component, op)
	case res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests:
		return errs.WrapTransient(fmt.Errorf("%w: %w", errs.ErrNotReady, re), component, op)
	default:
		return errs.WrapInvalid(re, component, op)
	}
}

var (
	_ ports.Gateway        = (*Gateway)(nil)
	_ ports.IndexLifecycle = (*Gateway)(nil)
)
