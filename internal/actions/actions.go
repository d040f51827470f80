// Package actions decides which lifecycle commands a project can accept,
// given whether a definition file exists on disk and what the runtime
// reports about the project.
package actions

import (
	"sort"
	"strings"

	"frameworks/api_compose/pkg/models"
)

// RequiresComposeFile lists every command that cannot run without a
// definition file on disk.
var RequiresComposeFile = []string{
	"up", "create", "run", "build", "pull", "push", "config", "convert",
}

// WorksWithoutComposeFile lists every command that operates purely on
// existing containers and therefore survives a deleted definition file.
var WorksWithoutComposeFile = []string{
	"start", "stop", "restart", "pause", "unpause",
	"ps", "logs", "top", "down", "rm", "kill",
}

// rule gates one action. A nil states slice means any state is acceptable;
// otherwise the project's gate state must be listed.
type rule struct {
	needsFile bool
	states    []string
}

// statefulAny covers every state a created project can be in. Actions with
// this rule work on anything except a project that was never started.
var statefulAny = []string{models.StateRunning, models.StateStopped, models.StatePaused}

var rules = map[string]rule{
	"up":     {needsFile: true},
	"build":  {needsFile: true},
	"pull":   {needsFile: true},
	"push":   {needsFile: true},
	"config": {needsFile: true},
	"create": {needsFile: true, states: []string{models.StateNotStarted}},

	"start":   {states: []string{models.StateStopped}},
	"stop":    {states: []string{models.StateRunning}},
	"pause":   {states: []string{models.StateRunning}},
	"unpause": {states: []string{models.StatePaused}},
	"restart": {states: statefulAny},
	"rm":      {states: []string{models.StateStopped}},

	"ps":   {states: statefulAny},
	"logs": {states: statefulAny},
	"top":  {states: statefulAny},
	"down": {states: statefulAny},
	"kill": {states: statefulAny},
}

// Known canonicalizes a command and reports whether the classifier gates
// it. Matching is case-insensitive.
func Known(command string) (string, bool) {
	c := strings.ToLower(strings.TrimSpace(command))
	_, ok := rules[c]
	return c, ok
}

// Names returns every gated action in sorted order.
func Names() []string {
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compute evaluates every gated action for a project. The returned map
// always contains one entry per known action.
func Compute(hasFile bool, state string) map[string]bool {
	gate := gateState(state)
	out := make(map[string]bool, len(rules))
	for name, r := range rules {
		out[name] = r.allows(hasFile, gate)
	}
	return out
}

// Allowed evaluates a single command. Unknown commands are never allowed.
func Allowed(command string, hasFile bool, state string) bool {
	name, ok := Known(command)
	if !ok {
		return false
	}
	return rules[name].allows(hasFile, gateState(state))
}

// NeedsComposeFile reports whether the command is in the file-bound set.
func NeedsComposeFile(command string) bool {
	return inSet(RequiresComposeFile, command)
}

// ContainerOnly reports whether the command is in the file-free set.
func ContainerOnly(command string) bool {
	return inSet(WorksWithoutComposeFile, command)
}

func (r rule) allows(hasFile bool, gate string) bool {
	if r.needsFile && !hasFile {
		return false
	}
	if r.states == nil {
		return true
	}
	for _, s := range r.states {
		if s == gate {
			return true
		}
	}
	return false
}

// gateState folds the raw runtime state into the value the rules compare
// against. Degraded projects accept the same commands as running ones, and
// anything unrecognized means the project was never started.
func gateState(state string) string {
	norm := models.NormalizeState(strings.ToLower(strings.TrimSpace(state)))
	if norm == models.StateDegraded {
		return models.StateRunning
	}
	return norm
}

func inSet(set []string, command string) bool {
	for _, s := range set {
		if strings.EqualFold(s, strings.TrimSpace(command)) {
			return true
		}
	}
	return false
}
