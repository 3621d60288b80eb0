package metrics

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type requestKey struct {
	handler string
	method  string
	code    string
}

type routeKey struct {
	handler string
	method  string
}

// HTTPCollector 记录 HTTP 请求次数、服务端错误与耗时。
type HTTPCollector struct {
	mu       sync.Mutex
	requests map[requestKey]uint64
	errors   map[routeKey]uint64
	latency  map[routeKey]*histogram
}

// NewHTTPCollector 创建独立的 HTTP 指标集合。
func NewHTTPCollector() *HTTPCollector {
	return &HTTPCollector{
		requests: make(map[requestKey]uint64),
		errors:   make(map[routeKey]uint64),
		latency:  make(map[routeKey]*histogram),
	}
}

var httpCollector = NewHTTPCollector()

// HTTP returns the process wide HTTP collector.
func HTTP() *HTTPCollector { return httpCollector }

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	httpCollector.Observe(handler, method, status, duration)
}

// Observe 记录一次请求。
func (c *HTTPCollector) Observe(handler, method string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests[requestKey{handler: handler, method: method, code: strconv.Itoa(status)}]++
	key := routeKey{handler: handler, method: method}
	if status >= 500 {
		c.errors[key]++
	}
	hist := c.latency[key]
	if hist == nil {
		hist = newHistogram()
		c.latency[key] = hist
	}
	hist.observe(duration.Seconds())
}

// Middleware wraps next and records every request under the given handler name.
func (c *HTTPCollector) Middleware(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		c.Observe(name, r.Method, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack 保留 websocket 升级能力。
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if r.status == http.StatusOK {
		r.status = http.StatusSwitchingProtocols
	}
	return hj.Hijack()
}

// Render writes the collector in Prometheus text exposition format.
func (c *HTTPCollector) Render(b *strings.Builder) {
	c.mu.Lock()
	reqs := make([]requestKey, 0, len(c.requests))
	reqValues := make(map[requestKey]uint64, len(c.requests))
	for key, value := range c.requests {
		reqs = append(reqs, key)
		reqValues[key] = value
	}
	routes := make([]routeKey, 0, len(c.latency))
	errs := make(map[routeKey]uint64, len(c.errors))
	lats := make(map[routeKey]*histogram, len(c.latency))
	for key, hist := range c.latency {
		routes = append(routes, key)
		lats[key] = hist.clone()
		errs[key] = c.errors[key]
	}
	c.mu.Unlock()

	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].handler != reqs[j].handler {
			return reqs[i].handler < reqs[j].handler
		}
		if reqs[i].method != reqs[j].method {
			return reqs[i].method < reqs[j].method
		}
		return reqs[i].code < reqs[j].code
	})
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].handler != routes[j].handler {
			return routes[i].handler < routes[j].handler
		}
		return routes[i].method < routes[j].method
	})

	writeHeader(b, "oracle_http_requests_total", "counter", "Total number of HTTP requests processed.")
	for _, key := range reqs {
		fmt.Fprintf(b, "oracle_http_requests_total{handler=\"%s\",method=\"%s\",code=\"%s\"} %d\n",
			escape(key.handler), escape(key.method), escape(key.code), reqValues[key])
	}

	writeHeader(b, "oracle_http_request_errors_total", "counter", "Total number of HTTP requests that resulted in a server error.")
	for _, key := range routes {
		fmt.Fprintf(b, "oracle_http_request_errors_total{handler=\"%s\",method=\"%s\"} %d\n",
			escape(key.handler), escape(key.method), errs[key])
	}

	writeHeader(b, "oracle_http_request_duration_seconds", "histogram", "HTTP request duration in seconds.")
	for _, key := range routes {
		labels := fmt.Sprintf("handler=\"%s\",method=\"%s\",", escape(key.handler), escape(key.method))
		lats[key].render(b, "oracle_http_request_duration_seconds", labels)
	}
}
