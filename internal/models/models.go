package models

// Repository is a starred GitHub repository.
type Repository struct {
	ID            string   `json:"repo_id"`
	Owner         string   `json:"owner"`
	Name          string   `json:"name"`
	FullName      string   `json:"full_name"`
	Description   *string  `json:"description"`
	URL           string   `json:"url"`
	HomepageURL   *string  `json:"homepage_url"`
	Stars         int      `json:"stars"`
	Language      *string  `json:"language"`
	Topics        []string `json:"topics"`
	ReadmeExcerpt *string  `json:"readme_excerpt"`
}

// Category is a user-named List that repositories are filed into.
type Category struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
	Position    int    `json:"position"`
}

// Membership files one repository into one category.
type Membership struct {
	RepoFullName string `json:"repo"`
	CategoryKey  string `json:"list"`
}

// Suggestion is what the classifier proposed for a single repository.
type Suggestion struct {
	MatchedCategory string  `json:"matched_list"`
	Confidence      float64 `json:"confidence"`
	ProposeNew      bool    `json:"create_new"`
	NewCategoryName string  `json:"new_list_name"`
	Rationale       string  `json:"reason"`
}

// ClassificationResult is the outcome of one classification job.
type ClassificationResult struct {
	Repo       Repository
	Suggestion *Suggestion
	Err        error
	Attempts   int
}

// Failed reports whether the job ended without a suggestion.
func (r ClassificationResult) Failed() bool {
	return r.Err != nil || r.Suggestion == nil
}
