// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"os"
	"time"
)

// PathChecker reports whether a path exists with the expected kind.
type PathChecker struct {
	name    string
	path    string
	wantDir bool
}

func NewPathChecker(name, path string, wantDir bool) *PathChecker {
	return &PathChecker{name: name, path: path, wantDir: wantDir}
}

func (c *PathChecker) Name() string { return c.name }

func (c *PathChecker) Check(context.Context) CheckResult {
	if c.path == "" {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	info, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{Status: StatusUnhealthy, Error: "not found", Message: c.path}
		}
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if info.IsDir() != c.wantDir {
		if c.wantDir {
			return CheckResult{Status: StatusUnhealthy, Error: "expected directory, got file"}
		}
		return CheckResult{Status: StatusUnhealthy, Error: "expected file, got directory"}
	}
	return CheckResult{Status: StatusHealthy, Message: c.path}
}

// CycleChecker is unhealthy until the first reconciliation cycle and whenever
// the last one is older than maxAge.
type CycleChecker struct {
	lastCycle func() time.Time
	maxAge    time.Duration
	now       func() time.Time
}

func NewCycleChecker(lastCycle func() time.Time, maxAge time.Duration) *CycleChecker {
	return &CycleChecker{lastCycle: lastCycle, maxAge: maxAge, now: time.Now}
}

func (c *CycleChecker) Name() string { return "reconcile_cycle" }

func (c *CycleChecker) Check(context.Context) CheckResult {
	last := c.lastCycle()
	if last.IsZero() {
		return CheckResult{Status: StatusUnhealthy, Message: "no reconciliation cycle yet"}
	}
	age := c.now().Sub(last)
	if age > c.maxAge {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("last cycle %s ago (limit %s)", age.Truncate(time.Millisecond), c.maxAge),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: "reconciling"}
}

// FaultChecker is degraded while any device has an unresolved fault.
type FaultChecker struct {
	count func() int
}

func NewFaultChecker(count func() int) *FaultChecker {
	return &FaultChecker{count: count}
}

func (c *FaultChecker) Name() string { return "device_faults" }

func (c *FaultChecker) Check(context.Context) CheckResult {
	if n := c.count(); n > 0 {
		return CheckResult{Status: StatusDegraded, Message: fmt.Sprintf("%d device(s) failing", n)}
	}
	return CheckResult{Status: StatusHealthy}
}
