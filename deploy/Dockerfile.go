# Builds one settlement binary per image:
#   docker build -f deploy/Dockerfile.go --build-arg SERVICE=worker .
# SERVICE is one of api, worker, ton-indexer, bot-notify-bridge, ledger-audit.
FROM golang:1.24-alpine AS builder

ARG SERVICE=api

WORKDIR /src

COPY go.mod go.sum* ./
RUN go mod download

COPY cmd ./cmd
COPY internal ./internal
COPY migrations ./migrations

RUN CGO_ENABLED=0 GOOS=linux go build -trimpath -ldflags="-s -w" -o /out/service ./cmd/${SERVICE}

FROM alpine:3.20

RUN apk add --no-cache ca-certificates tzdata \
    && addgroup -S gton && adduser -S -G gton gton

WORKDIR /app

COPY --from=builder /out/service .
COPY --from=builder /src/migrations ./migrations

ENV MIGRATIONS_DIR=/app/migrations \
    API_PORT=3000 \
    WORKER_PORT=3001

USER gton

# api listens on API_PORT, worker serves /health and /metrics on WORKER_PORT.
EXPOSE 3000 3001

ENTRYPOINT ["./service"]
