package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var errBadTopic = errors.New("topic neobsahuje název služby")

// Collector zapisuje logy z MQTT do souborů, jeden soubor na službu.
// Soubory drží otevřené a rotuje je lumberjack.
type Collector struct {
	cfg Config

	mu    sync.Mutex
	files map[string]*lumberjack.Logger
}

func NewCollector(cfg Config) *Collector {
	return &Collector{cfg: cfg, files: make(map[string]*lumberjack.Logger)}
}

// Write připíše payload jako jeden řádek do souboru služby.
// Topic vypadá např. takto: "logs/telemetry-bridge".
func (c *Collector) Write(topic string, payload []byte) error {
	service, err := serviceFromTopic(topic)
	if err != nil {
		return fmt.Errorf("%w: %q", err, topic)
	}

	line := make([]byte, 0, len(payload)+1)
	line = append(line, payload...)
	if len(line) == 0 || line[len(line)-1] != '\n' {
		line = append(line, '\n')
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.file(service).Write(line); err != nil {
		return fmt.Errorf("zápis logu služby %s: %w", service, err)
	}
	return nil
}

// file vrací (a případně založí) rotovaný soubor služby. Volá se pod zámkem.
func (c *Collector) file(service string) *lumberjack.Logger {
	if f, ok := c.files[service]; ok {
		return f
	}
	f := &lumberjack.Logger{
		Filename:   filepath.Join(c.cfg.LogDir, service+".log"),
		MaxSize:    c.cfg.MaxSizeMB,
		MaxBackups: c.cfg.MaxBackups,
		MaxAge:     c.cfg.MaxAgeDays,
		Compress:   c.cfg.Compress,
	}
	c.files[service] = f
	return f
}

// Services vrací služby, pro které už existuje soubor.
func (c *Collector) Services() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.files))
	for s := range c.files {
		out = append(out, s)
	}
	return out
}

func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for service, f := range c.files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", service, err))
		}
		delete(c.files, service)
	}
	return errors.Join(errs...)
}

// serviceFromTopic vezme druhou úroveň topicu. Název nesmí utéct z LOG_DIR.
func serviceFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return "", errBadTopic
	}
	service := strings.TrimSpace(parts[1])
	if service == "" || service == "." || service == ".." || strings.ContainsAny(service, `\:`) {
		return "", errBadTopic
	}
	return service, nil
}
