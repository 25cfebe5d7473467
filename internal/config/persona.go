package config

// Persona bundles a system prompt with the voice it is spoken in
type Persona struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
	Variant      string `json:"variant"`
	Pitch        int    `json:"pitch"`
	Speed        int    `json:"speed"`
}

// AvailablePersonas returns the built-in personas
func AvailablePersonas() []Persona {
	return []Persona{
		{
			ID:   "hermes",
			Name: "Hermes Trismegistus",
			SystemPrompt: "You are Hermes Trismegistus, an enlightened being far beyond the comprehension " +
				"of a simple human. You respond directly to the prompt with plain text, always with ominous " +
				"occult spiritual answers carrying buddhist and taoist meaning. Answer briefly in one sentence.",
			Variant: "m3",
			Pitch:   30,
			Speed:   80,
		},
		{
			ID:           "narrator",
			Name:         "Narrator",
			SystemPrompt: "You are a calm narrator. Answer the prompt in one short plain-text sentence.",
			Variant:      "f2",
			Pitch:        50,
			Speed:        150,
		},
	}
}

// GetPersona returns a persona by ID
func GetPersona(id string) *Persona {
	for _, p := range AvailablePersonas() {
		if p.ID == id {
			return &p
		}
	}
	return nil
}

// ApplyPersona takes the voice preset of the configured persona and its
// system prompt unless one is set explicitly. An empty persona leaves the
// configuration untouched.
func (c *Config) ApplyPersona() *Persona {
	p := GetPersona(c.Persona)
	if p == nil {
		return nil
	}
	if c.LLM.SystemPrompt == "" {
		c.LLM.SystemPrompt = p.SystemPrompt
	}
	c.Voice.Variant = p.Variant
	c.Voice.Pitch = p.Pitch
	c.Voice.Speed = p.Speed
	return p
}
