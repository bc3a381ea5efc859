package models

// TrackingStats summarizes the state of the tracking engine
type TrackingStats struct {
	Entities           int    `json:"entities"`
	Trails             int    `json:"trails"`
	Animating          int    `json:"animating"`
	Geofences          int    `json:"geofences"`
	Ingested           int64  `json:"ingested"`
	Rejected           int64  `json:"rejected"`
	MissingEntityID    int64  `json:"missingEntityId"`
	InvalidCoordinates int64  `json:"invalidCoordinates"`
	MalformedEvents    int64  `json:"malformedEvents"`
	MalformedPayloads  int64  `json:"malformedPayloads"`
	ContainmentEvents  int64  `json:"containmentEvents"`
	SubscriberFaults   int    `json:"subscriberFaults"`
	FramesRendered     int64  `json:"framesRendered"`
	Surface            string `json:"surface"`
}
