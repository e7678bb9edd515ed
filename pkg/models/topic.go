package models

// Topic is a syllabus unit. Owned by the catalog; the cores only read it.
type Topic struct {
	ID            int64   `json:"id"`
	Subject       string  `json:"subject"`
	Name          string  `json:"name"`
	ExamWeight    float64 `json:"exam_weight"`
	Prerequisites []int64 `json:"prerequisites"`
}
