package telemetry

// Field alias tables, checked in order. A dotted path walks nested
// objects; the first alias that resolves to a usable value wins.
var (
	entityIDAliases = []string{
		"deviceId", "device_id", "deviceID", "DeviceId", "dev_id",
		"vehicleId", "vehicle_id", "vehicleID", "veh_id",
		"imei", "uniqueId", "unique_id", "id",
		"device.id", "vehicle.id",
	}

	latitudeAliases = []string{
		"latitude", "lat", "Latitude", "Lat",
		"position.latitude", "position.lat",
		"location.latitude", "location.lat",
		"coords.latitude", "coords.lat",
		"gps.latitude", "gps.lat",
	}

	longitudeAliases = []string{
		"longitude", "lng", "lon", "long", "Longitude", "Lng", "Lon",
		"position.longitude", "position.lng", "position.lon",
		"location.longitude", "location.lng", "location.lon",
		"coords.longitude", "coords.lng",
		"gps.longitude", "gps.lng", "gps.lon",
	}

	// GeoJSON style [lng, lat] arrays, used when no scalar alias resolves
	coordinateArrayAliases = []string{
		"coordinates", "location.coordinates", "geometry.coordinates", "position.coordinates",
	}

	timestampAliases = []string{
		"timestamp", "timestampUtc", "timestamp_utc", "ts", "time",
		"fixTime", "fix_time", "deviceTime", "device_time",
		"recordedAt", "recorded_at", "position.timestamp",
	}

	speedAliases = []string{
		"speed", "spd", "velocity", "position.speed", "location.speed", "coords.speed", "attributes.speed",
	}

	headingAliases = []string{
		"heading", "course", "bearing", "direction",
		"position.heading", "position.course", "location.heading", "coords.heading",
	}

	altitudeAliases = []string{
		"altitude", "alt", "elevation",
		"position.altitude", "location.altitude", "coords.altitude", "gps.altitude",
	}

	batteryAliases = []string{
		"battery", "batteryLevel", "battery_level", "bat",
		"attributes.batteryLevel", "attributes.battery", "power.battery", "device.battery",
	}

	satelliteAliases = []string{
		"satellites", "sats", "sat", "satelliteCount", "satellite_count",
		"attributes.sat", "attributes.satellites", "gps.satellites",
	}
)
