package simap

// Localized is a text field the API returns in up to four languages.
type Localized struct {
	De string `json:"de"`
	Fr string `json:"fr"`
	It string `json:"it"`
	En string `json:"en"`
}

// Get returns the first non-empty translation, French first.
func (l *Localized) Get() string {
	if l == nil {
		return ""
	}
	for _, s := range []string{l.Fr, l.De, l.It, l.En} {
		if s != "" {
			return s
		}
	}
	return ""
}

// Address is the place of performance of a project.
type Address struct {
	CantonID   string     `json:"cantonId"`
	PostalCode string     `json:"postalCode"`
	City       *Localized `json:"city"`
}

// Project is one record of the project-search endpoint.
type Project struct {
	ID             string     `json:"id"`
	ProjectNumber  string     `json:"projectNumber"`
	Title          *Localized `json:"title"`
	ProjectType    string     `json:"projectType"`
	ProjectSubType string     `json:"projectSubType"`
	ProcessType    string     `json:"processType"`
	PublicationID  string     `json:"publicationId"`
	PubDate        string     `json:"publicationDate"`
	ProcOfficeName *Localized `json:"procOfficeName"`
	OrderAddress   *Address   `json:"orderAddress"`
}

// SearchResponse is one page of the project-search endpoint.
type SearchResponse struct {
	Projects []Project `json:"projects"`
}
