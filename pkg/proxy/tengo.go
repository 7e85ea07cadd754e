package proxy

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/d5/tengo/v2"
)

const (
	defaultEvalTimeout = 2 * time.Second
	defaultMaxAllocs   = 100000

	varURL    = "__pac_url"
	varHost   = "__pac_host"
	varResult = "__pac_result"
)

// TengoEvaluator evaluates PAC scripts written in tengo syntax:
//
//	FindProxyForURL := func(url, host) { ... return "PROXY proxy:8080" }
//
// Scripts get no import modules; the only host access is through HostFunctions.
type TengoEvaluator struct {
	host      HostFunctions
	timeout   time.Duration
	maxAllocs int64
}

// NewTengoEvaluator creates a tengo PAC backend. A nil host uses SystemHost.
func NewTengoEvaluator(host HostFunctions) *TengoEvaluator {
	if host == nil {
		host = SystemHost{}
	}
	return &TengoEvaluator{host: host, timeout: defaultEvalTimeout, maxAllocs: defaultMaxAllocs}
}

// WithTimeout bounds a single evaluation.
func (e *TengoEvaluator) WithTimeout(d time.Duration) *TengoEvaluator {
	if d > 0 {
		e.timeout = d
	}
	return e
}

// Evaluate implements PacEvaluator.
func (e *TengoEvaluator) Evaluate(ctx context.Context, script, targetURL, host string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	src := script + "\n" + varResult + " := FindProxyForURL(" + varURL + ", " + varHost + ")\n"
	s := tengo.NewScript([]byte(src))
	s.SetMaxAllocs(e.maxAllocs)

	if err := s.Add(varURL, targetURL); err != nil {
		return "", fmt.Errorf("failed to add %s to script: %w", varURL, err)
	}
	if err := s.Add(varHost, host); err != nil {
		return "", fmt.Errorf("failed to add %s to script: %w", varHost, err)
	}
	for name, fn := range e.functions(ctx) {
		if err := s.Add(name, &tengo.UserFunction{Name: name, Value: fn}); err != nil {
			return "", fmt.Errorf("failed to add %s to script: %w", name, err)
		}
	}

	compiled, err := s.RunContext(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPACEvaluation, err)
	}

	result := compiled.Get(varResult)
	if result == nil || result.IsUndefined() {
		return "", fmt.Errorf("%w: FindProxyForURL returned nothing", ErrPACEvaluation)
	}
	str, ok := result.Value().(string)
	if !ok {
		return "", fmt.Errorf("%w: FindProxyForURL returned %s, not a string", ErrPACEvaluation, result.ValueType())
	}
	return str, nil
}

func (e *TengoEvaluator) functions(ctx context.Context) map[string]tengo.CallableFunc {
	resolve := func(host string) (string, bool) {
		if ip := net.ParseIP(host); ip != nil && ip.To4() != nil {
			return ip.To4().String(), true
		}
		return e.host.DNSResolve(ctx, host)
	}

	return map[string]tengo.CallableFunc{
		"dnsResolve": func(args ...tengo.Object) (tengo.Object, error) {
			s, err := stringArgs("dnsResolve", args, 1)
			if err != nil {
				return nil, err
			}
			if ip, ok := resolve(s[0]); ok {
				return &tengo.String{Value: ip}, nil
			}
			return tengo.UndefinedValue, nil
		},
		"myIpAddress": func(args ...tengo.Object) (tengo.Object, error) {
			if len(args) != 0 {
				return nil, tengo.ErrWrongNumArguments
			}
			return &tengo.String{Value: e.host.MyIPAddress(ctx)}, nil
		},
		"isPlainHostName": boolFunc("isPlainHostName", 1, func(a []string) bool {
			return isPlainHostName(a[0])
		}),
		"dnsDomainIs": boolFunc("dnsDomainIs", 2, func(a []string) bool {
			return dnsDomainIs(a[0], a[1])
		}),
		"localHostOrDomainIs": boolFunc("localHostOrDomainIs", 2, func(a []string) bool {
			return localHostOrDomainIs(a[0], a[1])
		}),
		"isResolvable": boolFunc("isResolvable", 1, func(a []string) bool {
			_, ok := resolve(a[0])
			return ok
		}),
		"isInNet": boolFunc("isInNet", 3, func(a []string) bool {
			ip, ok := resolve(a[0])
			return ok && isInNet(ip, a[1], a[2])
		}),
		"shExpMatch": boolFunc("shExpMatch", 2, func(a []string) bool {
			return shExpMatch(a[0], a[1])
		}),
		"dnsDomainLevels": func(args ...tengo.Object) (tengo.Object, error) {
			s, err := stringArgs("dnsDomainLevels", args, 1)
			if err != nil {
				return nil, err
			}
			return &tengo.Int{Value: int64(dnsDomainLevels(s[0]))}, nil
		},
	}
}

func boolFunc(name string, n int, fn func([]string) bool) tengo.CallableFunc {
	return func(args ...tengo.Object) (tengo.Object, error) {
		s, err := stringArgs(name, args, n)
		if err != nil {
			return nil, err
		}
		if fn(s) {
			return tengo.TrueValue, nil
		}
		return tengo.FalseValue, nil
	}
}

// stringArgs converts helper arguments to strings. Undefined, e.g. a failed dnsResolve, becomes "".
func stringArgs(name string, args []tengo.Object, n int) ([]string, error) {
	if len(args) != n {
		return nil, tengo.ErrWrongNumArguments
	}
	out := make([]string, n)
	for i, arg := range args {
		if arg == tengo.UndefinedValue {
			continue
		}
		s, ok := tengo.ToString(arg)
		if !ok {
			return nil, tengo.ErrInvalidArgumentType{
				Name:     fmt.Sprintf("%s argument %d", name, i+1),
				Expected: "string",
				Found:    arg.TypeName(),
			}
		}
		out[i] = s
	}
	return out, nil
}
