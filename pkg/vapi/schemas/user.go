package schemas

type User struct {
	ID      string `json:"id" doc:"Unique identifier of the user"`
	Name    string `json:"name" doc:"Display name from Google"`
	Email   string `json:"email" doc:"Email address from Google"`
	Picture string `json:"picture,omitempty" doc:"Avatar URL from Google"`
}

type Flash struct {
	Category string `json:"category" enum:"success,error,info" doc:"Message category"`
	Message  string `json:"message" doc:"Text to show once"`
}

type SessionResponse struct {
	Body struct {
		Authenticated bool    `json:"authenticated" doc:"Whether a user is logged in"`
		User          *User   `json:"user,omitempty" doc:"The logged-in user"`
		CSRFToken     string  `json:"csrf_token" doc:"Token to echo in every state-changing request"`
		Messages      []Flash `json:"messages" doc:"Pending flash messages, cleared once read"`
	}
}

type MeResponse struct {
	Body struct {
		User      User `json:"user"`
		HasAPIKey bool `json:"has_api_key" doc:"Whether a Gemini API key is stored for the user"`
	}
}
