package config

// Version is the release version reported by every binary and the API
const Version = "0.3.0"
