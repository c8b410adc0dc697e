// Package importer loads automation rule sets from YAML files.
package importer

import (
	"context"
	"fmt"
	"io"

	"leadflow_backend/internal/automation/service"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// File is the YAML document layout:
//
//	automations:
//	  - userId: 7b0f...
//	    enabled: true
//	    followUps:
//	      - delayHours: 24
//	        message: "Still interested?"
//	        channel: whatsapp
type File struct {
	Automations []Entry `yaml:"automations"`
}

type Entry struct {
	UserID    string      `yaml:"userId"`
	Enabled   bool        `yaml:"enabled"`
	FollowUps []EntryRule `yaml:"followUps"`
}

type EntryRule struct {
	DelayHours float64 `yaml:"delayHours"`
	Message    string  `yaml:"message"`
	Channel    string  `yaml:"channel"`
}

// Parse decodes and validates a YAML document without touching storage.
func Parse(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("decode yaml: %w", err)
	}
	for i, e := range f.Automations {
		if _, err := uuid.Parse(e.UserID); err != nil {
			return File{}, fmt.Errorf("automations[%d]: invalid userId %q", i, e.UserID)
		}
		if _, err := service.BuildRules(e.inputs()); err != nil {
			return File{}, fmt.Errorf("automations[%d]: %w", i, err)
		}
	}
	return f, nil
}

// Apply replaces the rule set of every entry and returns how many were
// written.
func Apply(ctx context.Context, svc *service.Service, f File) (int, error) {
	applied := 0
	for i, e := range f.Automations {
		userID, err := uuid.Parse(e.UserID)
		if err != nil {
			return applied, fmt.Errorf("automations[%d]: %w", i, err)
		}
		if _, err := svc.Replace(ctx, userID, e.Enabled, e.inputs()); err != nil {
			return applied, fmt.Errorf("automations[%d]: %w", i, err)
		}
		applied++
	}
	return applied, nil
}

func (e Entry) inputs() []service.RuleInput {
	inputs := make([]service.RuleInput, 0, len(e.FollowUps))
	for _, r := range e.FollowUps {
		inputs = append(inputs, service.RuleInput{DelayHours: r.DelayHours, Message: r.Message, Channel: r.Channel})
	}
	return inputs
}
