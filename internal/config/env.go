package config

import (
    "fmt"
    "net"
    "os"
    "strconv"
    "strings"
    "time"
)

func envStr(k, d string) string {
    if v := os.Getenv(k); v != "" {
        return v
    }
    return d
}

func envBool(k string, d bool) bool {
    switch strings.ToLower(os.Getenv(k)) {
    case "1", "true", "yes", "on":
        return true
    case "0", "false", "no", "off":
        return false
    }
    return d
}

func envInt(k string, d int) int {
    if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
        return n
    }
    return d
}

// envDur accepts Go durations ("1500ms") and bare seconds ("2").
func envDur(k string, d time.Duration) time.Duration {
    v := os.Getenv(k)
    if v == "" {
        return d
    }
    if dur, err := time.ParseDuration(v); err == nil {
        return dur
    }
    if n, err := strconv.Atoi(v); err == nil {
        return time.Duration(n) * time.Second
    }
    return d
}

// envCIDRs parses a comma separated list of CIDRs or bare IPs.  A bare IP
// becomes a single-host network.
func envCIDRs(k string) ([]*net.IPNet, error) {
    var out []*net.IPNet
    for _, part := range strings.Split(os.Getenv(k), ",") {
        part = strings.TrimSpace(part)
        if part == "" {
            continue
        }
        if !strings.Contains(part, "/") {
            ip := net.ParseIP(part)
            if ip == nil {
                return nil, fmt.Errorf("%s: invalid address %q", k, part)
            }
            bits := 128
            if ip.To4() != nil {
                ip, bits = ip.To4(), 32
            }
            out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
            continue
        }
        _, n, err := net.ParseCIDR(part)
        if err != nil {
            return nil, fmt.Errorf("%s: %w", k, err)
        }
        out = append(out, n)
    }
    return out, nil
}
