// PhotosData is a paginated response payload for the photos list.
package dto

type PhotosData struct {
	Photos      []PhotoInfo `json:"photos"`
	PhotosDir   string      `json:"photosDir"`
	Length      int         `json:"length"`
	TotalPages  int         `json:"totalPages"`
	CurrentPage int         `json:"currentPage"`
	Limit       int         `json:"pageSize"`
}
