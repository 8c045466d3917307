package model

// WeatherReport is the observed weather for one timeslot.
type WeatherReport struct {
	TimeslotSerial int
	Temperature    float64 // degrees C
	WindSpeed      float64 // m/s
	WindDirection  float64 // degrees
	CloudCover     float64 // fraction 0..1
}

// WeatherForecast is a prediction for a timeslot some hours ahead of the
// slot it was issued in.
type WeatherForecast struct {
	IssuedSerial  int
	OffsetHours   int // 1-based hours past IssuedSerial
	Temperature   float64
	WindSpeed     float64
	WindDirection float64
	CloudCover    float64
}

// Report converts a forecast into report form for the slot it predicts.
func (f WeatherForecast) Report() WeatherReport {
	return WeatherReport{
		TimeslotSerial: f.IssuedSerial + f.OffsetHours,
		Temperature:    f.Temperature,
		WindSpeed:      f.WindSpeed,
		WindDirection:  f.WindDirection,
		CloudCover:     f.CloudCover,
	}
}
