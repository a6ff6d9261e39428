package api

import (
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-notes/internal/domain"
	"github.com/phrazzld/scry-notes/internal/task"
)

// InputPayload is one submitted input: either text, or a base64 image with
// its MIME type.
type InputPayload struct {
	ID          string `json:"id,omitempty"           validate:"omitempty,max=128"`
	Text        string `json:"text,omitempty"         validate:"required_without=ImageBase64,excluded_with=ImageBase64,max=1048576"`
	ImageBase64 string `json:"image_base64,omitempty" validate:"omitempty,base64"`
	MimeType    string `json:"mime_type,omitempty"    validate:"required_with=ImageBase64,omitempty,oneof=image/png image/jpeg image/webp image/heic image/heif"`
}

// SubmitRequest defines the payload for creating a task.
type SubmitRequest struct {
	Inputs []InputPayload `json:"inputs" validate:"required,min=1,max=20,dive"`
}

// ToInputs decodes the payload into domain inputs.
func (r SubmitRequest) ToInputs() ([]domain.InputRef, error) {
	inputs := make([]domain.InputRef, len(r.Inputs))
	for i, in := range r.Inputs {
		ref := domain.InputRef{ID: in.ID, Text: in.Text, MimeType: in.MimeType}
		if in.ImageBase64 != "" {
			img, err := base64.StdEncoding.DecodeString(in.ImageBase64)
			if err != nil {
				return nil, fmt.Errorf("%w: input %d: image is not valid base64", domain.ErrValidation, i)
			}
			ref.Image = img
		}
		if ref.ID == "" {
			ref.ID = fmt.Sprintf("input-%d", i+1)
		}
		inputs[i] = ref
	}
	return inputs, nil
}

// SubmitResponse is returned when a task is accepted.
type SubmitResponse struct {
	TaskID uuid.UUID         `json:"task_id"`
	Status domain.TaskStatus `json:"status"`
}

// TaskListResponse wraps an owner's tasks.
type TaskListResponse struct {
	Tasks []task.StatusView `json:"tasks"`
}

// ResultResponse carries the artifacts of a completed task.
type ResultResponse struct {
	TaskID uuid.UUID      `json:"task_id"`
	Result *domain.Result `json:"result"`
}
