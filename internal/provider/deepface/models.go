package deepface

// RepresentRequest for POST /represent
type RepresentRequest struct {
	Img              string `json:"img"`              // base64 data URI
	ModelName        string `json:"model_name"`       // "Facenet512", "ArcFace", etc
	DetectorBackend  string `json:"detector_backend"` // "retinaface", "mtcnn", etc
	EnforceDetection bool   `json:"enforce_detection"`
	Align            bool   `json:"align"`
}

// RepresentResponse from POST /represent
type RepresentResponse struct {
	Results []RepresentResult `json:"results"`
}

type RepresentResult struct {
	Embedding      []float64  `json:"embedding"`
	FacialArea     FacialArea `json:"facial_area"`
	FaceConfidence float64    `json:"face_confidence"`
}

type FacialArea struct {
	X        int     `json:"x"`
	Y        int     `json:"y"`
	W        int     `json:"w"`
	H        int     `json:"h"`
	LeftEye  *[2]int `json:"left_eye,omitempty"`
	RightEye *[2]int `json:"right_eye,omitempty"`
}

// AnalyzeRequest for POST /analyze
type AnalyzeRequest struct {
	Img              string   `json:"img"`
	Actions          []string `json:"actions"` // "age", "gender", "emotion"
	DetectorBackend  string   `json:"detector_backend"`
	EnforceDetection bool     `json:"enforce_detection"`
}

// AnalyzeResponse from POST /analyze
type AnalyzeResponse struct {
	Results []AnalyzeResult `json:"results"`
}

type AnalyzeResult struct {
	Region          FacialArea `json:"region"`
	Age             *int       `json:"age,omitempty"`
	DominantGender  string     `json:"dominant_gender,omitempty"`
	DominantEmotion string     `json:"dominant_emotion,omitempty"`
	FaceConfidence  float64    `json:"face_confidence"`
}
