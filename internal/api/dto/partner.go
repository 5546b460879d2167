package dto

type CoordinatesResponse struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type PartnerResponse struct {
	Institution string               `json:"institution"`
	City        string               `json:"city"`
	Country     string               `json:"country"`
	Funder      bool                 `json:"funder"`
	Projects    []string             `json:"projects"`
	Coordinates *CoordinatesResponse `json:"coordinates"`
	FormerNames []string             `json:"former_names,omitempty"`
}

type ListPartnersResponse struct {
	Partners []PartnerResponse `json:"partners"`
}

type ProjectResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Color       string `json:"color"`
	Members     int    `json:"members"`
}

type ListProjectsResponse struct {
	CatalogVersion int               `json:"catalog_version"`
	Projects       []ProjectResponse `json:"projects"`
}
