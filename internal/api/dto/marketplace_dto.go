package dto

import (
	"time"

	"github.com/workbridge/marketplace-be/internal/marketplace/domain"
)

type CreateJobRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description"`
	Budget      float64 `json:"budget" binding:"gte=0"`
}

type SubmitBidRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
	Note   string  `json:"note"`
}

type UpdateProgressRequest struct {
	Progress int `json:"progress" binding:"gte=0,lte=100"`
}

type ListJobsRequest struct {
	RequesterID string `form:"requester_id"`
	Status      string `form:"status" binding:"omitempty,jobstatus"`
	PageSize    int    `form:"page_size"`
	Cursor      string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID        string  `json:"job_id"`
	RequesterID  string  `json:"requester_id"`
	ContractorID *string `json:"contractor_id,omitempty"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Budget       float64 `json:"budget"`
	Status       string  `json:"status"`
	Progress     int     `json:"progress"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

type BidDTO struct {
	BidID      string  `json:"bid_id"`
	JobID      string  `json:"job_id"`
	ProviderID string  `json:"provider_id"`
	Amount     float64 `json:"amount"`
	Note       string  `json:"note,omitempty"`
	Status     string  `json:"status"`
	CreatedAt  string  `json:"created_at"`
}

type ListMessagesRequest struct {
	BeforeID int64 `form:"before_id"`
	PageSize int   `form:"page_size"`
}

type MessageDTO struct {
	ID          int64     `json:"id"`
	ChatRoomID  string    `json:"chatRoomId"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName,omitempty"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	Timestamp   time.Time `json:"timestamp"`
}

func FromJob(job *domain.Job) JobDTO {
	return JobDTO{
		JobID:        job.JobID,
		RequesterID:  job.RequesterID,
		ContractorID: job.ContractorID,
		Title:        job.Title,
		Description:  job.Description,
		Budget:       job.Budget,
		Status:       job.Status,
		Progress:     job.Progress,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    job.UpdatedAt.Format(time.RFC3339),
	}
}

func FromBid(bid *domain.Bid) BidDTO {
	return BidDTO{
		BidID:      bid.BidID,
		JobID:      bid.JobID,
		ProviderID: bid.ProviderID,
		Amount:     bid.Amount,
		Note:       bid.Note,
		Status:     bid.Status,
		CreatedAt:  bid.CreatedAt.Format(time.RFC3339),
	}
}

func FromMessage(msg *domain.Message) MessageDTO {
	return MessageDTO{
		ID:          msg.MessageID,
		ChatRoomID:  msg.RoomID,
		SenderID:    msg.SenderID,
		SenderName:  msg.SenderName,
		Content:     msg.Content,
		MessageType: msg.MessageType,
		Timestamp:   msg.CreatedAt,
	}
}
