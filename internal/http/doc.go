// Package http exposes the station engine as a JSON API.
//
// The router serves the following endpoints:
//   - GET /stations lists the floor with live timers; POST /stations registers
//     a station. GET /stations/{id} returns one station with its running bill.
//   - POST /stations/{id}/session starts a session from
//     {"entrants":[{"member_id"|"guest_name","plan","package_id","recharge_id","duration_minutes"}]}.
//     POST /stations/{id}/participants seats one more entrant.
//   - POST /stations/{id}/participants/{participant}/stop stops one player and
//     debits recharge time played; .../toggle pauses or resumes one player.
//     POST /stations/{id}/toggle pauses or resumes the whole station.
//   - POST /stations/{id}/time adds and DELETE /stations/{id}/time removes
//     time: {"participant_ids","duration_minutes","package_id"}.
//   - POST /stations/{id}/move moves the session to {"to_station_id"}.
//   - POST /stations/{id}/items, DELETE /stations/{id}/items/{line} and
//     PUT /stations/{id}/discount manage the running bill.
//   - POST /stations/{id}/checkout settles the station with
//     {"payment":{"method","cash_amount","upi_amount","paid_now","party_id","party_name"},"cycle_tag"}.
//   - GET/POST /members, GET /members/{id}, GET /members/{id}/balance and
//     POST /members/{id}/recharges manage members and recharge sales.
//   - GET/POST /packages, GET/PUT /packages/{id}; GET /packages?available=true
//     lists what can be sold right now.
//   - GET /bills?station_id=&member_id=&cycle_tag=&limit= and GET /bills/{id}.
//
// Request durations are whole minutes, response durations are seconds and
// money is a decimal string. Rejected transitions answer 409 with an
// error_code naming the precondition; validation failures answer 422 with
// per-field messages.
package http
