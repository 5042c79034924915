package model

// ReportMeta holds the descriptive columns copied verbatim into the outcome.
type ReportMeta struct {
	Title              string `json:"title"`
	PublicationYear    string `json:"publication_year"`
	OrganizationName   string `json:"organization_name"`
	OrganizationType   string `json:"organization_type"`
	OrganizationSector string `json:"organization_sector"`
	Country            string `json:"country"`
	Region             string `json:"region"`
}

// CatalogItem is one data row of the source workbook.
type CatalogItem struct {
	Row        int
	Key        string
	PrimaryURL string
	BackupURL  string
	Meta       ReportMeta
}
