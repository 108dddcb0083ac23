package agents

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/flipsync/flipsync/core"
)

// RoleProfile holds the canonical system prompt and conversation starters
// for one agent role
type RoleProfile struct {
	SystemPrompt string   `yaml:"system_prompt"`
	Starters     []string `yaml:"starters"`
}

// defaultProfiles is the built-in role catalog
var defaultProfiles = map[Role]RoleProfile{
	RoleMarket: {
		SystemPrompt: "You are FlipSync's market analysis specialist. You help online " +
			"marketplace sellers with pricing decisions, competitive analysis and demand " +
			"assessment. Ground every recommendation in the data you are given and state " +
			"your uncertainty explicitly. Keep answers concise and actionable.",
		Starters: []string{
			"What should I price this item at?",
			"How are my competitors pricing similar items?",
			"Is demand for this category trending up or down?",
		},
	},
	RoleContent: {
		SystemPrompt: "You are FlipSync's content optimization specialist. You write and " +
			"improve marketplace listing titles, descriptions and item specifics for search " +
			"visibility and conversion. Respect marketplace constraints such as the 80 " +
			"character title limit, and prefer concrete product attributes over filler.",
		Starters: []string{
			"Can you improve my listing title?",
			"Write a description for this product.",
			"Which keywords should this listing target?",
		},
	},
	RoleLogistics: {
		SystemPrompt: "You are FlipSync's logistics specialist. You advise sellers on " +
			"shipping options, carriers, packaging, handling times and inventory placement. " +
			"Favor the cheapest option that meets the stated delivery expectation.",
		Starters: []string{
			"What is the best way to ship this item?",
			"How should I manage my inventory levels?",
			"Which carrier is cheapest for a 5 lb package?",
		},
	},
	RoleExecutive: {
		SystemPrompt: "You are FlipSync's executive strategy advisor. You help sellers make " +
			"business-level decisions: where to invest, what to scale, when to exit a " +
			"category. Present options with trade-offs and a clear recommendation.",
		Starters: []string{
			"Should I expand into a new category?",
			"How do I grow my store this quarter?",
			"Which part of my business needs attention first?",
		},
	},
	RoleLiaison: {
		SystemPrompt: "You are FlipSync's concierge assistant. You are the first point of " +
			"contact for sellers: answer general questions, explain what FlipSync can do, " +
			"and hand off to a specialist when the question needs one.",
		Starters: []string{
			"What can FlipSync help me with?",
			"How do I create my first listing?",
			"Tell me about my account activity.",
		},
	},
}

// PromptRegistry is the process-local catalog of role prompts and
// starters. Updates are not persisted. Lookup for an unknown role returns
// the liaison profile.
type PromptRegistry struct {
	mu       sync.RWMutex
	profiles map[Role]RoleProfile
	logger   core.Logger
}

// NewPromptRegistry creates a registry seeded with the built-in catalog
func NewPromptRegistry(logger core.Logger) *PromptRegistry {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	profiles := make(map[Role]RoleProfile, len(defaultProfiles))
	for role, profile := range defaultProfiles {
		profiles[role] = profile
	}
	return &PromptRegistry{
		profiles: profiles,
		logger:   logger,
	}
}

// SystemPromptFor returns the system prompt for a role; unknown roles get
// the liaison prompt
func (p *PromptRegistry) SystemPromptFor(role Role) string {
	return p.profileFor(role).SystemPrompt
}

// StartersFor returns the user-facing starter prompts for a role
func (p *PromptRegistry) StartersFor(role Role) []string {
	starters := p.profileFor(role).Starters
	out := make([]string, len(starters))
	copy(out, starters)
	return out
}

// SetPromptFor replaces a role's system prompt, process-local only
func (p *PromptRegistry) SetPromptFor(role Role, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	profile := p.profiles[role]
	profile.SystemPrompt = text
	p.profiles[role] = profile
}

func (p *PromptRegistry) profileFor(role Role) RoleProfile {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if profile, ok := p.profiles[role]; ok {
		return profile
	}
	return p.profiles[RoleLiaison]
}

// LoadOverrides overlays role profiles from a YAML file. Roles absent from
// the file keep their defaults; unknown role names are rejected.
func (p *PromptRegistry) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading prompt overrides: %w", err)
	}

	var overrides map[string]RoleProfile
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parsing prompt overrides: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for name, override := range overrides {
		role := Role(name)
		if !role.Valid() {
			return fmt.Errorf("unknown role %q in prompt overrides: %w", name, core.ErrValidation)
		}
		profile := p.profiles[role]
		if override.SystemPrompt != "" {
			profile.SystemPrompt = override.SystemPrompt
		}
		if len(override.Starters) > 0 {
			profile.Starters = override.Starters
		}
		p.profiles[role] = profile
	}

	p.logger.Info("Prompt overrides loaded", map[string]interface{}{
		"operation": "prompt_overrides",
		"path":      path,
		"roles":     len(overrides),
	})
	return nil
}
