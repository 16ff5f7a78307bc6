package redis

const (
	// addActivityScript atomically increments a day's activity counter and
	// registers the date in the scan index.
	addActivityScript = `
local day_key = KEYS[1]       -- penance:day:activity:{date}
local index_key = KEYS[2]     -- penance:days

local date = ARGV[1]
local delta = tonumber(ARGV[2])

redis.call('INCRBY', day_key, delta)
redis.call('SADD', index_key, date)

return 'OK'
`

	// setUsageScript atomically overwrites a day's usage-minutes total and
	// registers the date in the scan index.
	setUsageScript = `
local day_key = KEYS[1]       -- penance:day:usage:{date}
local index_key = KEYS[2]     -- penance:days

local date = ARGV[1]
local minutes = ARGV[2]

redis.call('SET', day_key, minutes)
redis.call('SADD', index_key, date)

return 'OK'
`

	// resetLedgerScript deletes all per-day keys, the scan index, and the
	// derived caches in one atomic step. Settings survive.
	resetLedgerScript = `
local index_key = KEYS[1]     -- penance:days
local totals_key = KEYS[2]    -- penance:totals
local balance_key = KEYS[3]   -- penance:balance
local epoch_key = KEYS[4]     -- penance:year_epoch

local prefix_activity = ARGV[1]
local prefix_usage = ARGV[2]

local dates = redis.call('SMEMBERS', index_key)
for _, date in ipairs(dates) do
  redis.call('DEL', prefix_activity .. date)
  redis.call('DEL', prefix_usage .. date)
end

redis.call('DEL', index_key)
redis.call('DEL', totals_key)
redis.call('DEL', balance_key)
redis.call('DEL', epoch_key)

return 'OK'
`
)
