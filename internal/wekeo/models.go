package wekeo

// tokenRequest is the body of POST /gettoken.
type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// tokenResponse is returned by POST /gettoken.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// SearchResponse is one page of POST /dataaccess/search.
type SearchResponse struct {
	Type       string           `json:"type"`
	Features   []Feature        `json:"features"`
	Properties SearchProperties `json:"properties"`
}

// SearchProperties carries the paging counters of a search page.
type SearchProperties struct {
	TotalResults int `json:"totalResults"`
	ItemsPerPage int `json:"itemsPerPage"`
	StartIndex   int `json:"startIndex"`
}

// Feature is one catalog item.
type Feature struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Properties FeatureProperties `json:"properties"`
}

// FeatureProperties holds the item attributes used for downloading.
type FeatureProperties struct {
	Location  string `json:"location,omitempty"`
	Size      int64  `json:"size,omitempty"`
	StartDate string `json:"startdate,omitempty"`
	EndDate   string `json:"enddate,omitempty"`
}

// downloadRequest is the body of POST /dataaccess/download.
type downloadRequest struct {
	DatasetID string `json:"dataset_id"`
	ItemID    string `json:"item_id"`
}

// downloadResponse is returned by POST /dataaccess/download.
type downloadResponse struct {
	DownloadID string `json:"download_id,omitempty"`
	URL        string `json:"url,omitempty"`
}
