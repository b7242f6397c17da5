package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// HTTP is a capability that performs an HTTP request per invocation.
//
// URL is a text/template rendered with the invocation argument, so a scalar
// argument is referenced as {{ . }} and a record field as {{ .id }}. The
// template functions "path" and "query" escape values for the respective URL
// part. For methods that carry a body the argument is sent JSON encoded.
//
// A JSON response is decoded into generic values (maps, slices, strings,
// float64, bool); any other response body is returned as a string. Non 2xx
// responses fail with *HTTPError.
type HTTP struct {
	Method  string            `json:"method" yaml:"method"`
	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	Client *http.Client `json:"-" yaml:"-"`

	url *template.Template
}

type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

var urlFuncs = template.FuncMap{
	"path":  url.PathEscape,
	"query": url.QueryEscape,
}

// NewHTTP builds and compiles an HTTP capability
func NewHTTP(method string, urlTemplate string) (*HTTP, error) {
	h := &HTTP{Method: method, URL: urlTemplate}
	if err := h.Compile(); err != nil {
		return nil, err
	}
	return h, nil
}

// Compile parses the URL template. Invoke compiles on the fly when Compile was
// not called, at the cost of parsing the template on every call
func (h *HTTP) Compile() error {
	tmpl, err := h.parseURL()
	if err != nil {
		return err
	}
	h.url = tmpl
	return nil
}

func (h *HTTP) parseURL() (*template.Template, error) {
	if h.URL == "" {
		return nil, fmt.Errorf("http capability has no url")
	}
	tmpl, err := template.New("url").Funcs(urlFuncs).Option("missingkey=error").Parse(h.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid http url template %q: %w", h.URL, err)
	}
	return tmpl, nil
}

func (h *HTTP) String() string {
	return fmt.Sprintf("%s %s", h.method(), h.URL)
}

func (h *HTTP) method() string {
	if h.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(h.Method)
}

func (h *HTTP) Invoke(ctx context.Context, arg any) (any, error) {
	tmpl := h.url
	if tmpl == nil {
		var err error
		if tmpl, err = h.parseURL(); err != nil {
			return nil, err
		}
	}
	var urlBuf strings.Builder
	if err := tmpl.Execute(&urlBuf, arg); err != nil {
		return nil, fmt.Errorf("cannot render url for %s: %w", h, err)
	}
	target := urlBuf.String()

	method := h.method()
	var body io.Reader
	if hasBody(method) && arg != nil {
		encoded, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot encode request body for %s: %w", h, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		req.Header.Set(key, value)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cannot read response of %s %s: %w", method, target, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Method: method, URL: target, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return decodeBody(respBody), nil
}

func hasBody(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete, http.MethodOptions:
		return false
	}
	return true
}

func decodeBody(data []byte) any {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return string(data)
	}
	return value
}

var httpPattern = regexp.MustCompile(`^\s*(\w+)\s+(.+?)\s*$`)

// Parse reads the "METHOD URL" shorthand, eg "GET http://orgs/{{ . }}"
func (h *HTTP) Parse(s string) error {
	parts := httpPattern.FindStringSubmatch(s)
	if parts == nil {
		return fmt.Errorf("cannot parse http definition %q", s)
	}
	h.Method = strings.ToUpper(parts[1])
	h.URL = parts[2]
	return nil
}

func (h *HTTP) UnmarshalYAML(node *yaml.Node) error {
	if node.Value != "" {
		if err := h.Parse(node.Value); err != nil {
			return fmt.Errorf("invalid http definition at line %d: %w", node.Line, err)
		}
		return nil
	}
	type rawHTTP HTTP
	return node.Decode((*rawHTTP)(h))
}

// UnmarshalJSON accepts the same forms as UnmarshalYAML: the "METHOD URL"
// shorthand string or an object
func (h *HTTP) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var shorthand string
		if err := json.Unmarshal(trimmed, &shorthand); err != nil {
			return err
		}
		return h.Parse(shorthand)
	}
	type rawHTTP HTTP
	return json.Unmarshal(data, (*rawHTTP)(h))
}
