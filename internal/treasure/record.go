// Package treasure holds the treasure data model and the authoring workflow
// state machine the frontman drives during an event.
package treasure

// Vector3 is a spawn offset or rotation in client-world coordinates.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Record is one physical marker plus its clue, as exported to the client
// application's configuration.
type Record struct {
	ImageName            string  `json:"imageName"`
	FileName             string  `json:"fileName"`
	PhysicalSizeInMeters float64 `json:"physicalSizeInMeters"`
	SpawnOffset          Vector3 `json:"spawnOffset"`
	SpawnRotation        Vector3 `json:"spawnRotation"`

	// ClueIndex is assigned at creation, strictly increasing within a
	// session, and never reused even after deletions.
	ClueIndex int    `json:"clueIndex"`
	ClueName  string `json:"clueName"`
	ClueText  string `json:"clueText"`

	// Captured at image-capture time, not at save time.
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	HasPhysicalGame         bool   `json:"hasPhysicalGame"`
	PhysicalGameInstruction string `json:"physicalGameInstruction,omitempty"`
	PhysicalGameSecretCode  string `json:"physicalGameSecretCode,omitempty"`

	ValidationScore int    `json:"validationScore"`
	Unverified      bool   `json:"unverified,omitempty"`
	AssetURL        string `json:"assetUrl,omitempty"`
}

// Configuration is the exported document consumed by the client application.
// TotalTreasures is always recomputed from Images, never stored on its own.
type Configuration struct {
	Images         []Record `json:"images"`
	LastUpdated    string   `json:"lastUpdated"`
	TotalTreasures int      `json:"totalTreasures"`
}
