// Package dto provides Data Transfer Objects for API requests and responses.
package dto

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
