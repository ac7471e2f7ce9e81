package domain

const (
	// ImageEventChannel is the pub/sub channel carrying image events.
	ImageEventChannel = "humayat:images"

	MediaProviderCloudinary = "cloudinary"
	MediaProviderGCS        = "gcs"
)

const (
	RequestIDHeader = "X-Request-Id"
	RequestIDCtxKey = "hy-requestId"
)
