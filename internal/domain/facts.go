package domain

// ReputationFact is the normalized reputation provider result.
type ReputationFact struct {
	NumberOfDetection int    `json:"numberOfDetection"`
	NumberOfScanners  int    `json:"numberOfScanners"`
	DetectedEngines   string `json:"detectedEngines"`
	LastUpdated       string `json:"lastUpdated"`
	Synthetic         bool   `json:"synthetic,omitempty"`
}

// RegistrationFact is the normalized registration (WHOIS) provider result.
type RegistrationFact struct {
	DateCreated string `json:"dateCreated"`
	OwnerName   string `json:"ownerName"`
	ExpiredOn   string `json:"expiredOn"`
	Synthetic   bool   `json:"synthetic,omitempty"`
}
