package tradelog

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var mu sync.Mutex

var IST = time.FixedZone("IST", 19800)

// Entry is one order sent (or attempted) by the desk.
type Entry struct {
	Time      string         `json:"time"`
	BatchID   string         `json:"batch_id"`
	Exchange  string         `json:"exchange"`
	Symbol    string         `json:"symbol"`
	Side      string         `json:"side"`
	OrderType string         `json:"order_type"`
	Qty       int            `json:"qty"`
	Price     float64        `json:"price"`
	OrderID   string         `json:"order_id,omitempty"`
	Status    string         `json:"status"`
	Reason    string         `json:"reason,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Placed reports whether the entry reached the broker.
func (e Entry) Placed() bool {
	return e.OrderID != "" && e.Status != "FAILED" && e.Status != "SKIPPED"
}

// BlockedEntry records an order stopped by a protection rule.
type BlockedEntry struct {
	Time    string  `json:"time"`
	BatchID string  `json:"batch_id"`
	Symbol  string  `json:"symbol"`
	Side    string  `json:"side"`
	Qty     int     `json:"qty"`
	Price   float64 `json:"price,omitempty"`
	Rule    string  `json:"rule"`
	Reason  string  `json:"reason"`
}

func logDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func dailyFilepath(t time.Time) string {
	d := t.In(IST).Format("2006-01-02")
	return filepath.Join(logDir(), d+".txt")
}

func blockedFilepath(t time.Time) string {
	d := t.In(IST).Format("2006-01-02")
	return filepath.Join(logDir(), "blocked", d+".txt")
}

func Append(e Entry) error {
	mu.Lock()
	defer mu.Unlock()
	now := time.Now().In(IST)
	e.Time = now.Format("2006-01-02 15:04:05")
	return appendLine(dailyFilepath(now), e)
}

func AppendBlocked(e BlockedEntry) error {
	mu.Lock()
	defer mu.Unlock()
	now := time.Now().In(IST)
	e.Time = now.Format("2006-01-02 15:04:05")
	return appendLine(blockedFilepath(now), e)
}

func appendLine(p string, v any) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// ReadDay returns the journal entries for the IST day containing t. A day
// without a journal yields no entries and no error. Malformed lines are
// skipped.
func ReadDay(t time.Time) ([]Entry, error) {
	mu.Lock()
	defer mu.Unlock()

	f, err := os.Open(dailyFilepath(t))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

// Dir is the journal directory; the EOD summaries are written next to it.
func Dir() string { return logDir() }

func CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	root := logDir()
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(p) != ".txt" {
			return nil
		}
		info, er := d.Info()
		if er != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			compressFile(p)
		}
		return nil
	})
}

func compressFile(p string) {
	gz := p + ".gz"
	// if already gz exists, remove original .txt
	if _, err := os.Stat(gz); err == nil {
		_ = os.Remove(p)
		return
	}

	in, err := os.Open(p)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return
	}
	gw := gzip.NewWriter(out)
	_, copyErr := io.Copy(gw, in)
	closeErr := gw.Close()
	_ = out.Close()
	if copyErr == nil && closeErr == nil {
		_ = os.Remove(p)
		return
	}
	_ = os.Remove(gz)
}
