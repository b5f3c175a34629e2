package domain

import (
	"strconv"
	"time"
)

// Kind selects which prober executes a request.
type Kind string

const (
	KindTCPConnect    Kind = "tcp_connect"
	KindUDPPing       Kind = "udp_ping"
	KindDNSResolve    Kind = "dns_resolve"
	KindInterfaceList Kind = "interface_list"
	KindHTTPGet       Kind = "http_get"
)

// Kinds lists every kind the tool knows how to run.
func Kinds() []Kind {
	return []Kind{KindTCPConnect, KindUDPPing, KindDNSResolve, KindInterfaceList, KindHTTPGet}
}

func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

type RequestID string

// Params holds kind-specific options (port, record type, bind address...).
// Values are kept as strings; the accessors below parse on demand.
type Params map[string]string

func (p Params) String(key, def string) string {
	if v, ok := p[key]; ok && v != "" {
		return v
	}
	return def
}

func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (p Params) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return def, nil
	}
	return time.ParseDuration(v)
}

// ProbeRequest is one unit of work. It is built once by the config layer and
// never mutated afterwards.
type ProbeRequest struct {
	ID           RequestID     `json:"id"`
	Kind         Kind          `json:"kind"`
	Target       string        `json:"target"`
	Timeout      time.Duration `json:"timeout"`
	RetryMax     int           `json:"retry_max"`
	RetryBackoff time.Duration `json:"retry_backoff"`
	Params       Params        `json:"params,omitempty"`
}

// InterfaceInfo describes one local network interface.
type InterfaceInfo struct {
	Name         string   `json:"name" yaml:"name"`
	Index        int      `json:"index" yaml:"index"`
	MTU          int      `json:"mtu" yaml:"mtu"`
	HardwareAddr string   `json:"hardware_addr,omitempty" yaml:"hardware_addr,omitempty"`
	Flags        []string `json:"flags,omitempty" yaml:"flags,omitempty"`
	Addrs        []string `json:"addrs,omitempty" yaml:"addrs,omitempty"`
}

// AddressResult is one resolved address's share of a dial attempt.
type AddressResult struct {
	Address string        `json:"address"`
	Source  string        `json:"source,omitempty"`
	Status  Status        `json:"status"`
	Failure FailureKind   `json:"failure,omitempty"`
	Error   string        `json:"error,omitempty"`
	Latency time.Duration `json:"latency"`
}

// Detail is the kind-specific payload of an outcome. Source and Destination
// name the first address that answered, or the first one tried.
type Detail struct {
	Source      string          `json:"source,omitempty"`
	Destination string          `json:"destination,omitempty"`
	Addresses   []AddressResult `json:"addresses,omitempty"`
	Records     []string        `json:"records,omitempty"`
	StatusCode  int             `json:"status_code,omitempty"`
	Interfaces  []InterfaceInfo `json:"interfaces,omitempty"`
}

// ProbeOutcome is the result of one attempt, or the final result of a request.
type ProbeOutcome struct {
	RequestID RequestID     `json:"request_id"`
	Attempt   int           `json:"attempt"`
	Status    Status        `json:"status"`
	Failure   FailureKind   `json:"failure,omitempty"`
	Error     string        `json:"error,omitempty"`
	Latency   time.Duration `json:"latency"`
	StartedAt time.Time     `json:"started_at"`
	Detail    Detail        `json:"detail"`
}

func (o ProbeOutcome) Succeeded() bool { return o.Status == StatusSuccess }

// LatencyMS mirrors the millisecond float used across reports and logs.
func (o ProbeOutcome) LatencyMS() float64 {
	return float64(o.Latency) / float64(time.Millisecond)
}

// Terminal is what the scheduler hands to the aggregator for each request.
type Terminal struct {
	Outcome  ProbeOutcome
	Attempts int
	State    State
}

// Entry is one row of the final report.
type Entry struct {
	Request  ProbeRequest `json:"request"`
	Outcome  ProbeOutcome `json:"outcome"`
	Attempts int          `json:"attempts"`
	State    State        `json:"state"`
}

type Summary struct {
	Total     int       `json:"total" yaml:"total"`
	Succeeded int       `json:"succeeded" yaml:"succeeded"`
	Failed    int       `json:"failed" yaml:"failed"`
	TimedOut  int       `json:"timed_out" yaml:"timed_out"`
	Cancelled int       `json:"cancelled" yaml:"cancelled"`
	Status    RunStatus `json:"run_status" yaml:"run_status"`
}

// RunReport is ordered by submission order, never by completion order.
type RunReport struct {
	Entries []Entry `json:"entries"`
	Summary Summary `json:"summary"`
}

// Run pairs a report with the identity and timing of the invocation that
// produced it.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Report     RunReport `json:"report"`
}
