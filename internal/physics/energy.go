package physics

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/the-cubic-cat/sfera/internal/simtime"
	loggingphysics "github.com/the-cubic-cat/sfera/logging/physics"
)

var (
	ErrAlreadyLogging     = errors.New("already_logging_kinetic_energy")
	ErrNotLogging         = errors.New("not_logging_kinetic_energy")
	ErrMissingLogArgument = errors.New("missing_energy_log_argument")
)

// maxLogSuffix bounds the search for a free name_N.csv.
const maxLogSuffix = 10_000

type energyLog struct {
	file     *os.File
	writer   *csv.Writer
	path     string
	interval simtime.Time
	tags     []string
	next     simtime.Time
	rows     int
}

// BeginLoggingKineticEnergy starts writing one CSV row per interval of
// simulation time with the aggregate kinetic energy of each tag. An empty
// tag list logs every ball. The file is name.csv, or name_N.csv for the
// first N that does not exist yet. It returns the path written to.
func (e *Engine) BeginLoggingKineticEnergy(name string, interval simtime.Time, tags []string) (string, error) {
	e.energyMu.Lock()
	defer e.energyMu.Unlock()

	now := e.SimulationTime()
	reject := func(err error) (string, error) {
		loggingphysics.EnergyLogRejected(context.Background(), e.publisher, int64(now), loggingphysics.EnergyLogPayload{
			Path:       name,
			IntervalNS: int64(interval),
			Tags:       tags,
			Reason:     err.Error(),
		}, nil)
		return "", err
	}

	if e.energy != nil {
		return reject(fmt.Errorf("%s: %w", e.energy.path, ErrAlreadyLogging))
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return reject(fmt.Errorf("file name: %w", ErrMissingLogArgument))
	}
	if interval <= 0 {
		return reject(fmt.Errorf("interval %s: %w", interval, ErrMissingLogArgument))
	}
	if len(tags) == 0 {
		tags = []string{""}
	}

	file, path, err := createLogFile(name)
	if err != nil {
		return reject(err)
	}
	writer := csv.NewWriter(file)
	writer.Comma = ';'

	header := make([]string, 0, len(tags)+1)
	header = append(header, "Time:")
	for _, tag := range tags {
		if tag == "" {
			tag = "all"
		}
		header = append(header, tag+":")
	}
	if err := writer.Write(header); err != nil {
		file.Close()
		return reject(fmt.Errorf("write header: %w", err))
	}
	writer.Flush()

	e.energy = &energyLog{
		file:     file,
		writer:   writer,
		path:     path,
		interval: interval,
		tags:     append([]string(nil), tags...),
		next:     now,
	}
	loggingphysics.EnergyLogStarted(context.Background(), e.publisher, int64(now), loggingphysics.EnergyLogPayload{
		Path:       path,
		IntervalNS: int64(interval),
		Tags:       tags,
	}, nil)
	return path, nil
}

func createLogFile(name string) (*os.File, string, error) {
	base := strings.TrimSuffix(name, ".csv")
	for i := 0; i < maxLogSuffix; i++ {
		path := base + ".csv"
		if i > 0 {
			path = base + "_" + strconv.Itoa(i) + ".csv"
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return file, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("create %s: %w", path, err)
		}
	}
	return nil, "", fmt.Errorf("no free file name for %s", base)
}

// StopLoggingKineticEnergy flushes and closes the active log.
func (e *Engine) StopLoggingKineticEnergy() error {
	e.energyMu.Lock()
	defer e.energyMu.Unlock()
	if e.energy == nil {
		return ErrNotLogging
	}
	log := e.energy
	e.energy = nil

	log.writer.Flush()
	err := log.writer.Error()
	if cerr := log.file.Close(); err == nil {
		err = cerr
	}
	loggingphysics.EnergyLogStopped(context.Background(), e.publisher, int64(e.SimulationTime()), loggingphysics.EnergyLogPayload{
		Path: log.path,
		Rows: log.rows,
	}, nil)
	return err
}

// IsLoggingKineticEnergy reports whether a CSV log is open.
func (e *Engine) IsLoggingKineticEnergy() bool {
	e.energyMu.Lock()
	defer e.energyMu.Unlock()
	return e.energy != nil
}

// logEnergy writes a row for every scheduled instant up to t.
func (e *Engine) logEnergy(t simtime.Time) {
	e.energyMu.Lock()
	defer e.energyMu.Unlock()
	log := e.energy
	if log == nil || t < log.next {
		return
	}
	for log.next <= t {
		row := make([]string, 0, len(log.tags)+1)
		row = append(row, strconv.FormatFloat(log.next.Seconds(), 'f', -1, 64))
		for _, tag := range log.tags {
			row = append(row, strconv.FormatFloat(e.KineticEnergy(log.next, tag), 'g', -1, 64))
		}
		if err := log.writer.Write(row); err != nil {
			e.logger.Printf("kinetic energy log %s: %v", log.path, err)
			return
		}
		log.rows++
		log.next += log.interval
	}
	log.writer.Flush()
}

func (e *Engine) rebaseEnergyLog(t simtime.Time) {
	e.energyMu.Lock()
	defer e.energyMu.Unlock()
	if e.energy != nil && e.energy.next < t {
		e.energy.next = t
	}
}
