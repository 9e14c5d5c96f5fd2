package onestep

// Version is the release of the onestep module.
const Version = "0.3.0"
