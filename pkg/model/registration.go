package model

// Project is a project an instance can be registered to.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RegistrationRequest asks the server to issue an identity for this instance.
type RegistrationRequest struct {
	ProjectID    string `json:"projectId"`
	Description  string `json:"description,omitempty"`
	InstanceType string `json:"instanceType"`
	TechnicalID  string `json:"technicalId"`
	Hostname     string `json:"hostname,omitempty"`
}

// RegistrationResponse carries the identity issued by the server.
type RegistrationResponse struct {
	ID1          string `json:"id1"`
	ID2          string `json:"id2"`
	Description  string `json:"description,omitempty"`
	InstanceType string `json:"instanceType,omitempty"`
}

// TrialRegistration requests a trial subscription.
type TrialRegistration struct {
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Company   string `json:"company,omitempty"`
	ProjectID string `json:"projectId,omitempty"`
}

// RenewalResponse is returned by a registration renewal.
type RenewalResponse struct {
	Renewed   bool   `json:"renewed"`
	ExpiresAt string `json:"expiresAt,omitempty"`
	Message   string `json:"message,omitempty"`
}
