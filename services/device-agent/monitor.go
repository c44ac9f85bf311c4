package main

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

var errNoSensors = errors.New("žádné teplotní senzory")

// Sampler čte hodnoty z hostitele. Zdroje dat jsou funkce, aby šly v testech podstrčit.
type Sampler struct {
	iface string

	counters func() ([]net.IOCountersStat, error)
	temps    func() ([]host.TemperatureStat, error)
	cpuLoad  func() ([]float64, error)
	memory   func() (*mem.VirtualMemoryStat, error)
	now      func() time.Time

	// Bandwidth se počítá z rozdílu čítačů mezi dvěma měřeními.
	lastBytes uint64
	lastAt    time.Time
	primed    bool
}

// NewSampler - iface prázdné = všechna rozhraní kromě loopbacku.
func NewSampler(iface string) *Sampler {
	return &Sampler{
		iface:    iface,
		counters: func() ([]net.IOCountersStat, error) { return net.IOCounters(true) },
		temps:    host.SensorsTemperatures,
		// Interval 0 = vytížení od minulého volání, neblokuje.
		cpuLoad: func() ([]float64, error) { return cpu.Percent(0, false) },
		memory:  mem.VirtualMemory,
		now:     time.Now,
	}
}

// Bandwidth vrací provoz (odeslané + přijaté) v Mbps od posledního volání.
// První volání jen nastaví výchozí stav a vrací ok=false.
func (s *Sampler) Bandwidth() (mbps float64, ok bool, err error) {
	stats, err := s.counters()
	if err != nil {
		return 0, false, err
	}

	var total uint64
	for _, st := range stats {
		if s.iface != "" && st.Name != s.iface {
			continue
		}
		if s.iface == "" && st.Name == "lo" {
			continue
		}
		total += st.BytesSent + st.BytesRecv
	}

	now := s.now()
	prevBytes, prevAt, primed := s.lastBytes, s.lastAt, s.primed
	s.lastBytes, s.lastAt, s.primed = total, now, true

	elapsed := now.Sub(prevAt).Seconds()
	// Čítač se po restartu rozhraní nuluje - takové měření zahodíme.
	if !primed || elapsed <= 0 || total < prevBytes {
		return 0, false, nil
	}

	bits := float64(total-prevBytes) * 8
	return round2(bits / 1e6 / elapsed), true, nil
}

// Temperature vrací teplotu CPU ve °C. Když senzor CPU nenajde, vezme nejvyšší
// hodnotu ze všech senzorů.
func (s *Sampler) Temperature() (float64, error) {
	temps, err := s.temps()
	// gopsutil vrací i částečné výsledky s varováním - data použijeme, pokud nějaká jsou.
	if len(temps) == 0 {
		if err != nil {
			return 0, err
		}
		return 0, errNoSensors
	}

	best, found := math.Inf(-1), false
	for _, t := range temps {
		if t.Temperature > 0 && isCPUSensor(t.SensorKey) && t.Temperature > best {
			best, found = t.Temperature, true
		}
	}
	if !found {
		for _, t := range temps {
			if t.Temperature > best {
				best, found = t.Temperature, true
			}
		}
	}
	if !found {
		return 0, errNoSensors
	}
	return round2(best), nil
}

// CPULoad - průměrné vytížení přes všechna jádra v procentech.
func (s *Sampler) CPULoad() (float64, error) {
	p, err := s.cpuLoad()
	if err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, errors.New("cpu: prázdné měření")
	}
	return round2(p[0]), nil
}

// MemoryUsed - obsazená RAM v procentech.
// Linux používá volnou RAM jako cache, proto počítáme Total - Available, ne Used.
func (s *Sampler) MemoryUsed() (float64, error) {
	vm, err := s.memory()
	if err != nil {
		return 0, err
	}
	if vm.Total == 0 {
		return 0, errors.New("mem: nulová kapacita")
	}
	used := float64(vm.Total-vm.Available) / float64(vm.Total) * 100
	return round2(used), nil
}

func isCPUSensor(key string) bool {
	key = strings.ToLower(key)
	for _, hint := range []string{"coretemp", "k10temp", "cpu", "package", "soc"} {
		if strings.Contains(key, hint) {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
