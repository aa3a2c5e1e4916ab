package schemas

type SaveAPIKeyRequest struct {
	APIKey    string `json:"api_key,omitempty" doc:"Google AI API key"`
	CSRFToken string `json:"csrf_token,omitempty" doc:"Session CSRF token"`
}

type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
