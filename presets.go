package main

// GridPreset represents a predefined grid configuration
type GridPreset struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Config      *Config `json:"-"`
}

// GetPredefinedConfigs returns all available predefined grid configurations
func GetPredefinedConfigs() []GridPreset {
	return []GridPreset{
		{
			Name:        "small_grid",
			Description: "3x2 brick grid, swap physics, no faults",
			Config: &Config{
				Columns:       3,
				Rows:          2,
				TileWidth:     32,
				TileHeight:    16,
				Radius:        4,
				EventRadius:   3,
				EventInterval: 4,
				TotalTicks:    2000,
				QuiesceTicks:  DefaultQuiesceTicks,
				Seed:          1,
				Density:       0.3,
				AtomTypes:     4,
				Physics:       PhysicsSwap,
				PipeLatency:   1,
			},
		},
		{
			Name:        "pair",
			Description: "Two tiles joined east-west, dense counter physics",
			Config: &Config{
				Columns:       2,
				Rows:          1,
				TileWidth:     16,
				TileHeight:    12,
				Radius:        4,
				EventRadius:   4,
				EventInterval: 1,
				TotalTicks:    1000,
				QuiesceTicks:  DefaultQuiesceTicks,
				Seed:          7,
				Density:       0.6,
				AtomTypes:     2,
				Physics:       PhysicsCounter,
				PipeLatency:   1,
			},
		},
		{
			Name:        "fault_storm",
			Description: "4x3 grid with link resets, severed wires and a demoted tile",
			Config: &Config{
				Columns:       4,
				Rows:          3,
				TileWidth:     24,
				TileHeight:    12,
				Radius:        4,
				EventRadius:   3,
				EventInterval: 2,
				TotalTicks:    3000,
				QuiesceTicks:  512,
				Seed:          99,
				Density:       0.4,
				AtomTypes:     4,
				Physics:       PhysicsSwap,
				PipeLatency:   2,
				PipeCapacity:  16,
				Faults: []string{
					"300:reset:5:E",
					"600:sever:1:SE",
					"900:restore:1:SE",
					"1200:demote:6:W",
					"1500:promote:6:W",
					"1800:reset:10:NW",
				},
			},
		},
		{
			Name:        "mixed_levels",
			Description: "3x3 grid where the center tile speaks an incompatible protocol level",
			Config: &Config{
				Columns:       3,
				Rows:          3,
				TileWidth:     32,
				TileHeight:    16,
				Radius:        4,
				EventRadius:   2,
				EventInterval: 3,
				TotalTicks:    1500,
				QuiesceTicks:  DefaultQuiesceTicks,
				Seed:          3,
				Density:       0.3,
				AtomTypes:     3,
				Physics:       PhysicsSwap,
				PipeLatency:   1,
				LegacyTiles:   []int{4},
			},
		},
	}
}

// GetConfigByName returns a copy of the named preset, or nil.
func GetConfigByName(name string) *Config {
	for _, preset := range GetPredefinedConfigs() {
		if preset.Name == name {
			return preset.Config.Clone()
		}
	}
	return nil
}
