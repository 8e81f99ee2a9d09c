// Copyright 2025 EngFlow Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package diag defines the diagnostic records emitted by every translator
// phase and the sinks that collect them. The core never prints; it reports
// (severity, origin, message) triples and keeps counting, so a single run can
// surface as many problems as possible before the caller decides to fail.
package diag

import (
	"errors"
	"fmt"
	"io"

	"github.com/EngFlow/okl_cc/internal/origin"
)

// Severity classifies a diagnostic. Warnings never block emission; errors
// make the overall translation fail after all phases had their chance to run;
// fatals additionally stop the current phase on the spot.
type Severity int

const (
	Warning Severity = iota
	Error
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Diagnostic is a single positioned message.
type Diagnostic struct {
	Severity Severity
	Origin   origin.Origin
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Origin, d.Severity, d.Message)
}

// Sink receives diagnostics from the translator phases.
type Sink interface {
	Report(Diagnostic)
}

// Warnf reports a formatted warning at the given origin.
func Warnf(sink Sink, at origin.Origin, format string, args ...any) {
	sink.Report(Diagnostic{Severity: Warning, Origin: at, Message: fmt.Sprintf(format, args...)})
}

// Errorf reports a formatted error at the given origin.
func Errorf(sink Sink, at origin.Origin, format string, args ...any) {
	sink.Report(Diagnostic{Severity: Error, Origin: at, Message: fmt.Sprintf(format, args...)})
}

// Fatalf reports a formatted fatal error at the given origin. The caller is
// expected to stop its phase after reporting.
func Fatalf(sink Sink, at origin.Origin, format string, args ...any) {
	sink.Report(Diagnostic{Severity: Fatal, Origin: at, Message: fmt.Sprintf(format, args...)})
}

// Collector is a Sink accumulating every reported diagnostic in order.
type Collector struct {
	Diagnostics []Diagnostic

	errorCount   int
	warningCount int
}

func (c *Collector) Report(d Diagnostic) {
	c.Diagnostics = append(c.Diagnostics, d)
	if d.Severity == Warning {
		c.warningCount++
	} else {
		c.errorCount++
	}
}

// Errors returns the number of collected error and fatal diagnostics.
func (c *Collector) Errors() int { return c.errorCount }

// Warnings returns the number of collected warning diagnostics.
func (c *Collector) Warnings() int { return c.warningCount }

// Err joins all collected errors and fatals into a single error value, or
// returns nil when none were reported.
func (c *Collector) Err() error {
	var errs []error
	for _, d := range c.Diagnostics {
		if d.Severity != Warning {
			errs = append(errs, errors.New(d.String()))
		}
	}
	return errors.Join(errs...)
}

// Writer is a Sink printing each diagnostic as "file:line:col: severity:
// message", one per line. The CLI wires it to stderr.
type Writer struct {
	W io.Writer
}

func (w Writer) Report(d Diagnostic) {
	fmt.Fprintln(w.W, d.String())
}

// Tee forwards every diagnostic to all wrapped sinks.
type Tee []Sink

func (t Tee) Report(d Diagnostic) {
	for _, sink := range t {
		sink.Report(d)
	}
}
